package generic

import "fmt"

// Result[T] is a (T, error) pair that can travel as one value, e.g. through a channel.
type Result[T any] struct {
	Value T
	Error error
}

// NewResult wraps a (T, error) return value from another function call as a Result[T].
func NewResult[T any](value T, err error) Result[T] {
	return Result[T]{Value: value, Error: err}
}

func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

func Err[T any](err error) Result[T] {
	return Result[T]{Error: err}
}

func (r Result[T]) IsErr() bool {
	return r.Error != nil
}

func (r Result[T]) IsOk() bool {
	return r.Error == nil
}

// Parts returns the Result[T] as a (T, error) pair, as if returned from a function call.
func (r Result[T]) Parts() (T, error) {
	return r.Value, r.Error
}

// Unwrap returns value, or panics if err is set. Only for errors that mean a programming mistake.
func Unwrap[T any](value T, err error) T {
	Unwrap_(err)
	return value
}

// Unwrap_ is like Unwrap, but for return values that are just an error.
func Unwrap_(err error) {
	if err != nil {
		panic(fmt.Errorf("unexpected error: %w", err))
	}
}
