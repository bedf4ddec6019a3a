/*
Package scheduling groups the task execution packages.

  - workerpool: the bounded, cancellable worker pool
  - middleware: decorators for workerpool handlers
  - feed: producers that submit tasks into a pool

Worker Pool:

	pool, err := workerpool.New(4, 100, handle) // 4 workers, queue size 100
	if err != nil {
		return err
	}
	pool.Start()

	go func() {
		defer pool.Close()
		for _, task := range tasks {
			if err := pool.Submit(task); err != nil {
				return
			}
		}
	}()

	for r := range pool.All() { // ends once every queued task has reported
		handleResult(r.Value, r.Error)
	}

Handlers:

	h := middleware.Chain(handle,
		middleware.Logging[Task, Out](logger),
		middleware.Timeout[Task, Out](5*time.Second),
	)

Feeds:

	c, err := feed.NewCron[Task](pool, "@every 1m", generate, feed.Config{})
	go c.Run(ctx)
*/
package scheduling
