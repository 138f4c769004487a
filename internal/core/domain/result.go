package domain

import "errors"

var errUnknownFailure = errors.New("unknown failure")

// Result is the outcome of a lifecycle operation: either a value or an error,
// never both.
type Result[T any] struct {
	value T
	err   error
}

func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

func Fail[T any](err error) Result[T] {
	if err == nil {
		err = errUnknownFailure
	}
	return Result[T]{err: err}
}

// From converts a conventional (value, error) pair. The value is dropped when
// err is non-nil.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(value)
}

func (r Result[T]) OK() bool {
	return r.err == nil
}

// Value returns the success value, or the zero value for a failed result.
func (r Result[T]) Value() T {
	return r.value
}

func (r Result[T]) Err() error {
	return r.err
}

// Message is the human-readable failure text, empty on success.
func (r Result[T]) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

func (r Result[T]) Kind() string {
	return KindOf(r.err)
}

func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.err
}
