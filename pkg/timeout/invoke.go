// Package timeout runs blocking calls under a wall-clock deadline.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the deadline passes before the call finishes.
var ErrTimeout = errors.New("operation timed out")

type outcome[T any] struct {
	value T
	err   error
}

// Invoke runs fn on its own goroutine and waits at most d for it. The
// context handed to fn is cancelled once Invoke returns, so fn can stop early
// after a timeout; Invoke itself never waits for fn past the deadline.
func Invoke[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		var out outcome[T]
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("panic: %v", r)
			}
			done <- out
		}()
		out.value, out.err = fn(callCtx)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case out := <-done:
		return out.value, out.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
