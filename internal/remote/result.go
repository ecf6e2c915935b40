package remote

import "context"

// Result is a result-or-error value produced at the backend boundary.
type Result[T any] struct {
	OK    bool
	Value T
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{OK: true, Value: v}
}

// Fail wraps an error.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Unwrap returns the value and error in the usual Go shape.
func (r Result[T]) Unwrap() (T, error) {
	if !r.OK {
		var zero T
		return zero, r.Err
	}
	return r.Value, nil
}

// Async runs fn in its own goroutine and delivers its outcome on the returned channel.
// The channel is buffered so the goroutine never blocks if the caller gives up.
func Async[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, err := fn(ctx)
		if err != nil {
			ch <- Fail[T](err)
			return
		}
		ch <- Ok(v)
	}()
	return ch
}

// Await waits for an Async result or for ctx to end.
func Await[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case r := <-ch:
		return r.Unwrap()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
