package workerpool

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	tpcontext "github.com/vnykmshr/taskpool/pkg/common/context"
)

// Start launches the workers. Only the first call has an effect.
func (p *Pool[T, R]) Start() {
	p.StartWithContext(context.Background())
}

// StartWithContext launches the workers and ties the pool to parent:
// when parent is done the pool is cancelled with parent's cause. This is
// how callers compose deadlines into the pool's cancellation signal.
func (p *Pool[T, R]) StartWithContext(parent context.Context) {
	p.startOnce.Do(func() {
		if parent != nil && parent.Done() != nil {
			p.unlink = tpcontext.Link(parent, p.cancel)
		}
		p.started.Store(true)
		p.inst.setSize(p.config.WorkerCount)

		p.logger.Debug("starting workers",
			zap.Int("workers", p.config.WorkerCount),
			zap.Int("queue_size", p.config.QueueSize))

		for i := 0; i < p.config.WorkerCount; i++ {
			go p.worker(i)
		}
	})
}

// Submit adds a task to the queue, blocking while the queue is full.
func (p *Pool[T, R]) Submit(task T) error {
	return p.SubmitWithContext(context.Background(), task)
}

// SubmitWithTimeout submits a task, giving up if it cannot be queued
// within timeout.
func (p *Pool[T, R]) SubmitWithTimeout(task T, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.SubmitWithContext(ctx, task)
}

// SubmitWithContext adds a task to the queue. The context bounds only the
// wait for queue space, not the task's execution.
//
// It returns ErrPoolClosed after Close, ErrPoolCancelled when the pool is
// cancelled first, or the wrapped ctx error when ctx ends first. A ctx
// that ends while the queue is full also yields ErrQueueFull. It is safe
// to call from multiple goroutines.
func (p *Pool[T, R]) SubmitWithContext(ctx context.Context, task T) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return p.reject("closed", ErrPoolClosed)
	}
	p.submitters.Add(1)
	p.mu.RUnlock()
	defer p.submitters.Done()

	// Checked before the select so a pool that is already cancelled never
	// accepts a task, even when the queue has room.
	if tpcontext.IsCanceled(p.ctx) {
		return p.reject("cancelled", p.cancelled(ErrPoolCancelled))
	}
	if err := ctx.Err(); err != nil {
		return p.reject("context", fmt.Errorf("workerpool: submit: %w", err))
	}

	env := envelope[T]{
		task:     task,
		seq:      p.seq.Add(1),
		enqueued: time.Now(),
	}

	select {
	case p.tasks <- env:
		p.submitted.Add(1)
		p.inst.taskSubmitted(len(p.tasks))
		return nil
	case <-p.closing:
		return p.reject("closed", ErrPoolClosed)
	case <-p.ctx.Done():
		return p.reject("cancelled", p.cancelled(ErrPoolCancelled))
	case <-ctx.Done():
		return p.reject("queue_full", fmt.Errorf("%w: %w", ErrQueueFull, ctx.Err()))
	}
}

// Close stops accepting tasks. Tasks already queued are still processed
// and the result channel closes once they are done. Submitters blocked on
// a full queue are released with ErrPoolClosed.
//
// Calling Close more than once returns ErrDoubleClose and has no other effect.
func (p *Pool[T, R]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("close called twice")
		return ErrDoubleClose
	}
	p.closed = true
	close(p.closing)
	p.mu.Unlock()

	// No new submitter can register once closed is set; wait for the ones
	// already past the check so nothing sends on a closed channel.
	p.submitters.Wait()
	close(p.tasks)

	p.logger.Debug("intake closed", zap.Int("queued", len(p.tasks)))
	return nil
}

// Cancel asks every worker to stop. Running handlers see their context
// cancelled and finish cooperatively; their results are still delivered.
// Queued tasks that no worker has picked up are never run. Cancel is
// idempotent.
func (p *Pool[T, R]) Cancel() {
	p.CancelWithCause(nil)
}

// CancelWithCause is Cancel with a cause that handlers can read through
// context.Cause. Only the first cancellation's cause is kept.
func (p *Pool[T, R]) CancelWithCause(cause error) {
	if cause == nil {
		cause = ErrPoolCancelled
	}
	if p.ctx.Err() == nil {
		p.logger.Info("cancelling pool", zap.Error(cause))
	}
	p.cancel(cause)
}

// Results returns the result channel. It must be drained by a single
// consumer; workers block once it is full. The channel is closed after
// every worker has exited.
func (p *Pool[T, R]) Results() <-chan Result[T, R] {
	return p.results
}

// All returns a single-use iterator over the result channel. Breaking
// out of the loop leaves the remaining results unread.
func (p *Pool[T, R]) All() iter.Seq[Result[T, R]] {
	return func(yield func(Result[T, R]) bool) {
		for r := range p.results {
			if !yield(r) {
				return
			}
		}
	}
}

// Values is All projected to (value, error) pairs.
func (p *Pool[T, R]) Values() iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		for r := range p.results {
			if !yield(r.Value, r.Error) {
				return
			}
		}
	}
}

// Done returns a channel that is closed after the result channel has been
// closed. It never closes for a pool that was not started.
func (p *Pool[T, R]) Done() <-chan struct{} {
	return p.done
}

// Shutdown closes intake and returns Done. The caller must keep draining
// Results for the returned channel to close.
func (p *Pool[T, R]) Shutdown() <-chan struct{} {
	if err := p.Close(); err != nil && !errors.Is(err, ErrDoubleClose) {
		p.logger.Error("close failed", zap.Error(err))
	}
	return p.done
}

// ShutdownWithTimeout is Shutdown followed by Cancel if the pool has not
// finished within timeout.
func (p *Pool[T, R]) ShutdownWithTimeout(timeout time.Duration) <-chan struct{} {
	done := p.Shutdown()
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			p.CancelWithCause(fmt.Errorf("%w: shutdown exceeded %s", ErrPoolCancelled, timeout))
		}
	}()
	return done
}

// Context returns the pool's cancellation context, the same one handlers receive.
func (p *Pool[T, R]) Context() context.Context {
	return p.ctx
}

// Size returns the number of workers in the pool.
func (p *Pool[T, R]) Size() int {
	return p.config.WorkerCount
}

// Name returns the configured pool name.
func (p *Pool[T, R]) Name() string {
	return p.config.Name
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *Pool[T, R]) QueueSize() int {
	return len(p.tasks)
}

// ActiveWorkers returns the number of workers currently running a handler.
func (p *Pool[T, R]) ActiveWorkers() int {
	return int(p.active.Load())
}

// TotalSubmitted returns the number of tasks accepted into the queue.
func (p *Pool[T, R]) TotalSubmitted() int64 {
	return p.submitted.Load()
}

// TotalCompleted returns the number of handler invocations that returned,
// successfully or not.
func (p *Pool[T, R]) TotalCompleted() int64 {
	return p.completed.Load()
}

// TotalFailed returns the number of handler invocations that returned an
// error or panicked.
func (p *Pool[T, R]) TotalFailed() int64 {
	return p.failed.Load()
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers       int
	ActiveWorkers int
	Queued        int
	Submitted     int64
	Rejected      int64
	Completed     int64
	Failed        int64
	// Abandoned counts tasks dequeued after cancellation; each still
	// produced a Result carrying ErrTaskCancelled.
	Abandoned int64
	Started   bool
	Closed    bool
	Cancelled bool
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T, R]) Stats() Stats {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	return Stats{
		Workers:       p.config.WorkerCount,
		ActiveWorkers: p.ActiveWorkers(),
		Queued:        p.QueueSize(),
		Submitted:     p.submitted.Load(),
		Rejected:      p.rejected.Load(),
		Completed:     p.completed.Load(),
		Failed:        p.failed.Load(),
		Abandoned:     p.abandoned.Load(),
		Started:       p.started.Load(),
		Closed:        closed,
		Cancelled:     tpcontext.IsCanceled(p.ctx),
	}
}

func (p *Pool[T, R]) reject(reason string, err error) error {
	p.rejected.Add(1)
	p.inst.taskRejected(reason)
	return err
}

// cancelled returns base, annotated with the cancellation cause when the
// cause is something other than a plain Cancel.
func (p *Pool[T, R]) cancelled(base error) error {
	cause := context.Cause(p.ctx)
	if cause == nil || errors.Is(cause, ErrPoolCancelled) || errors.Is(cause, base) {
		return base
	}
	return fmt.Errorf("%w: %w", base, cause)
}
