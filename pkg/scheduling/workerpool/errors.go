package workerpool

import (
	"fmt"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
)

var (
	// ErrInvalidConfiguration is matched by every constructor error.
	ErrInvalidConfiguration = tperrors.ErrInvalidConfiguration

	// ErrPoolClosed is returned by Submit once Close has been called.
	ErrPoolClosed = fmt.Errorf("workerpool: pool closed: %w", tperrors.ErrClosed)

	// ErrPoolCancelled is returned by Submit when the pool was cancelled
	// before or while the task waited for queue space.
	ErrPoolCancelled = fmt.Errorf("workerpool: pool cancelled: %w", tperrors.ErrCanceled)

	// ErrQueueFull is returned, together with the context error, when a
	// submitter's context ends while it waits for queue space.
	ErrQueueFull = fmt.Errorf("workerpool: queue full: %w", tperrors.ErrCapacityExceeded)

	// ErrDoubleClose is returned by every Close after the first.
	ErrDoubleClose = fmt.Errorf("workerpool: %w", tperrors.ErrDoubleClose)

	// ErrTaskCancelled is carried in the Result of a task that a worker
	// dequeued after cancellation; its handler never ran.
	ErrTaskCancelled = fmt.Errorf("workerpool: task abandoned before start: %w", tperrors.ErrCanceled)
)

// PanicError is carried in Result.Error when a handler panics.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workerpool: task panicked: %v", e.Value)
}
