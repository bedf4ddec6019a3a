// Package context holds the small context helpers used at taskpool
// cancellation checkpoints.
package context

import (
	"context"
	"errors"
	"time"
)

// WithTimeoutOrCancel creates a context that is canceled either when the parent
// is canceled or when the timeout duration elapses, whichever comes first.
// A non-positive timeout returns a plain cancelable child of parent.
func WithTimeoutOrCancel(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut returns true if the context was canceled due to a timeout
func IsTimedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// Reason returns the cancellation cause of ctx, falling back to ctx.Err().
// It is nil while ctx is still live.
func Reason(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

// Link cancels target with the cause of parent once parent is done.
// The returned stop function detaches the link; it reports whether the
// link was removed before it fired.
func Link(parent context.Context, target context.CancelCauseFunc) (stop func() bool) {
	return context.AfterFunc(parent, func() {
		target(Reason(parent))
	})
}
