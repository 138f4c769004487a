package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/resilience"
)

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if domain.IsKind(err, domain.ErrAborted) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if isConnectionError(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func isConnectionError(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected)
}

func wrapUnreachableIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrUnreachable) {
		return err
	}
	if isConnectionError(err) {
		return domain.WrapError(domain.ErrUnreachable, "nats publish", err)
	}
	return err
}
