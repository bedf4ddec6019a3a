/*
Package workerpool provides a bounded, cancellable worker pool with typed results.

A Pool runs a fixed number of worker goroutines that take tasks of type T
from a FIFO queue, pass each one to a Handler, and publish a Result[T, R]
carrying either the returned value or the error. Concurrency never exceeds
the worker count, and the queue capacity bounds memory: a full queue blocks
producers (backpressure), and an undrained result channel eventually blocks
the workers and therefore the producers too.

Basic usage:

	pool, err := workerpool.New(2, 0, func(ctx context.Context, x int) (int, error) {
		return x * 2, nil
	})
	if err != nil {
		log.Fatal(err) // matches workerpool.ErrInvalidConfiguration
	}
	pool.Start()

	go func() {
		defer pool.Close()
		for _, x := range []int{1, 2, 3, 4} {
			if err := pool.Submit(x); err != nil {
				return
			}
		}
	}()

	for r := range pool.All() {
		fmt.Println(r.Value, r.Error)
	}

Lifecycle:

  - Start / StartWithContext launch the workers once. A parent context
    passed to StartWithContext cancels the pool when it ends, which is
    how deadlines are composed in.
  - Submit, SubmitWithTimeout and SubmitWithContext enqueue a task. They
    fail with ErrPoolClosed after Close and ErrPoolCancelled after Cancel.
  - Close stops intake. Queued tasks still run; the result channel closes
    after the last one. A second Close returns ErrDoubleClose.
  - Cancel broadcasts cooperative cancellation. Handlers see ctx.Done();
    no task is started after a worker observes the signal. Results of
    tasks that were already running are still delivered. Cancel may be
    called any number of times.

Results:

Results are delivered in completion order, not submission order; use
Result.Seq to correlate. Exactly one Result is produced for every task a
worker dequeues. Handler errors and panics are captured in Result.Error
(panics as *PanicError) and never stop the pool. A task dequeued after
cancellation is reported with ErrTaskCancelled without running.

The result channel is closed exactly once, by the last worker to exit.
Done is closed right after it.

Configuration:

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		WorkerCount:  8,
		QueueSize:    64,
		ResultBuffer: 8,
		TaskTimeout:  30 * time.Second,
		Name:         "resizer",
		Logger:       logger,
		Metrics:      metrics.DefaultRegistry,
	}, resize)

Retries are deliberately left to the handler or the host application.
*/
package workerpool
