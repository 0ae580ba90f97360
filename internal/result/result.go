// Package result provides the success/error envelope every remote-value
// decoding terminates in.
//
// A Result holds exactly one of a value (Ok) or an error (Err). There is no
// partially populated state: constructing an Err without an error, or reading
// the value of an Err, is not possible through the exported API.
package result

import (
	"errors"
	"fmt"
)

// Result is a tagged union of a success value or a failure.
type Result[T any] struct {
	value T
	err   error
}

// Ok returns a successful Result carrying value.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Err returns a failed Result with the given message.
func Err[T any](message string) Result[T] {
	return Result[T]{err: errors.New(message)}
}

// FromError returns a failed Result wrapping err. A nil err is treated as
// an unknown failure so the envelope never ends up in the Ok state by accident.
func FromError[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("unknown error")
	}
	return Result[T]{err: err}
}

// IsOk reports whether the Result is a success.
func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// Value returns the success value, or the zero value of T for an Err.
func (r Result[T]) Value() T {
	return r.value
}

// Error returns the failure, or nil for an Ok.
func (r Result[T]) Error() error {
	return r.err
}

// Message returns the failure message, or "" for an Ok.
func (r Result[T]) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// Get unpacks the Result into Go's usual (value, error) pair.
func (r Result[T]) Get() (T, error) {
	return r.value, r.err
}

// String renders the envelope as Ok(value) or Err(message).
func (r Result[T]) String() string {
	if r.err != nil {
		return fmt.Sprintf("Err(%s)", r.err.Error())
	}
	return fmt.Sprintf("Ok(%v)", r.value)
}

// Map applies fn to the value of an Ok and passes an Err through unchanged.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.err != nil {
		return Result[U]{err: r.err}
	}
	return Ok(fn(r.value))
}

// Then chains a fallible step after an Ok; an Err short-circuits.
func Then[T, U any](r Result[T], fn func(T) Result[U]) Result[U] {
	if r.err != nil {
		return Result[U]{err: r.err}
	}
	return fn(r.value)
}
