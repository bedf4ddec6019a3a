package workerpool

import (
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	tpcontext "github.com/vnykmshr/taskpool/pkg/common/context"
)

// worker is the main loop of one worker. It exits when the pool is
// cancelled or when the task queue is closed and drained.
func (p *Pool[T, R]) worker(id int) {
	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(id)
	}
	defer func() {
		if p.config.OnWorkerStop != nil {
			p.config.OnWorkerStop(id)
		}
		p.logger.Debug("worker stopped", zap.Int("worker", id))
		if p.exited.Add(1) == int32(p.config.WorkerCount) {
			p.finish()
		}
	}()

	for {
		if tpcontext.IsCanceled(p.ctx) {
			return
		}

		select {
		case <-p.ctx.Done():
			return
		case env, ok := <-p.tasks:
			if !ok {
				return
			}
			p.inst.setQueued(len(p.tasks))
			p.results <- p.execute(id, env)
		}
	}
}

// finish runs exactly once, on the last worker to exit.
func (p *Pool[T, R]) finish() {
	close(p.results)
	if p.unlink != nil {
		p.unlink()
	}
	p.inst.setActive(0)
	close(p.done)

	p.logger.Debug("all workers stopped",
		zap.Int64("completed", p.completed.Load()),
		zap.Int64("failed", p.failed.Load()),
		zap.Int64("abandoned", p.abandoned.Load()))
}

// execute runs one task and builds its Result. A task dequeued after
// cancellation is not run.
func (p *Pool[T, R]) execute(workerID int, env envelope[T]) (res Result[T, R]) {
	res = Result[T, R]{
		Task:     env.task,
		Seq:      env.seq,
		WorkerID: workerID,
	}

	if tpcontext.IsCanceled(p.ctx) {
		p.abandoned.Add(1)
		res.Error = p.cancelled(ErrTaskCancelled)
		return res
	}

	start := time.Now()
	p.inst.setActive(int(p.active.Add(1)))
	p.inst.observeQueueWait(start.Sub(env.enqueued))

	defer func() {
		if r := recover(); r != nil {
			res.Error = &PanicError{Value: r, Stack: debug.Stack()}
			p.logger.Error("task panicked",
				zap.Int("worker", workerID),
				zap.Uint64("seq", env.seq),
				zap.Any("panic", r))
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(workerID, r)
			}
		}

		res.Duration = time.Since(start)
		p.completed.Add(1)
		if res.Error != nil {
			p.failed.Add(1)
		}
		p.inst.setActive(int(p.active.Add(-1)))
		p.inst.taskFinished(res.Duration, res.Error)
	}()

	ctx, cancel := tpcontext.WithTimeoutOrCancel(p.ctx, p.config.TaskTimeout)
	defer cancel()

	res.Value, res.Error = p.handler(ctx, env.task)
	return res
}
