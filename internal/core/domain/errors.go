package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation failure")
	ErrInvalidState    = errors.New("invalid state")
	ErrPathViolation   = errors.New("path violation")
	ErrNotFound        = errors.New("not found")
	ErrIO              = errors.New("io failure")
	ErrUnreachable     = errors.New("backend unreachable")
	ErrBackendRejected = errors.New("backend rejected")
	ErrResponseFormat  = errors.New("response format error")
	ErrTimeout         = errors.New("timeout")
	ErrAborted         = errors.New("aborted")
)

// kinds is ordered so that the most specific classification wins in KindOf.
var kinds = []struct {
	err  error
	name string
}{
	{ErrPathViolation, "path_violation"},
	{ErrValidation, "validation_failure"},
	{ErrInvalidState, "invalid_state"},
	{ErrNotFound, "not_found"},
	{ErrResponseFormat, "response_format_error"},
	{ErrBackendRejected, "backend_rejected"},
	{ErrTimeout, "timeout"},
	{ErrAborted, "aborted"},
	{ErrUnreachable, "unreachable"},
	{ErrIO, "io_failure"},
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// NewError builds a kind-tagged error without an underlying cause.
func NewError(kind error, operation, message string) error {
	return fmt.Errorf("%s: %w: %s", operation, kind, message)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf returns the stable name of the first error kind found in err's chain,
// or "internal" when err carries none.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// IsRetryable reports whether repeating the same call may succeed without a fix
// on either side.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrTimeout)
}

// ContextError maps context cancellation and deadlines onto the Aborted and
// Timeout kinds. Other errors pass through unchanged.
func ContextError(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrAborted):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(ErrTimeout, operation, err)
	case errors.Is(err, context.Canceled):
		return WrapError(ErrAborted, operation, err)
	}
	return err
}
