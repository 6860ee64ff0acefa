package kube

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Result is the outcome of reading a single object. Exactly one of Found,
// NotFound, or Err describes it.
type Result[T any] struct {
	obj   T
	err   error
	found bool
}

// Get calls get and classifies its outcome. A Kubernetes NotFound status
// becomes [Result.NotFound] rather than an error.
func Get[T any](ctx context.Context, name string, get func(context.Context, string) (T, error)) Result[T] {
	obj, err := get(ctx, name)

	return Classify(obj, err)
}

// Classify builds a [Result] from an object and error pair.
func Classify[T any](obj T, err error) Result[T] {
	switch {
	case err == nil:
		return Result[T]{obj: obj, found: true}
	case apierrors.IsNotFound(err):
		return Result[T]{}
	default:
		return Result[T]{err: err}
	}
}

// Found reports whether the object exists.
func (r Result[T]) Found() bool {
	return r.found
}

// NotFound reports whether the object is absent (and no other error occurred).
func (r Result[T]) NotFound() bool {
	return !r.found && r.err == nil
}

// Err returns the error for any outcome other than found or not found.
func (r Result[T]) Err() error {
	return r.err
}

// Object returns the object. It is the zero value unless [Result.Found].
func (r Result[T]) Object() T {
	return r.obj
}

// Exists converts the result into the (bool, error) form used by name
// resolution.
func (r Result[T]) Exists() (bool, error) {
	return r.found, r.err
}
