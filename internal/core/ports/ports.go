// Package ports declares the boundaries of the lifecycle core: inbound
// contracts served to transports and outbound contracts implemented by
// infrastructure adapters.
package ports

import "github.com/kirillkom/pdfqa-gateway/internal/core/domain"

// LifecycleObserver receives notifications about state transitions and
// cleanup outcomes, typically to record metrics.
type LifecycleObserver interface {
	ObserveTransition(from, to domain.LifecycleState)
	ObserveCleanup(outcome string)
	ObserveUploadRejected(err error)
}
