/*
Package taskpool provides a bounded, cancellable worker pool with typed
results, plus the plumbing needed to run one inside a real process.

Task Execution (pkg/scheduling):
  - workerpool: fixed-size generic pool, Pool[T, R], with backpressure,
    cooperative cancellation and exactly one Result per task
  - middleware: handler decorators for timeouts, rate limits, circuit
    breaking, logging and metrics
  - feed: producers that submit from slices, channels, cron schedules
    and Redis lists

Observability (pkg/metrics):
  - Prometheus collectors for pools, handlers and feeds

Example usage:

	import "github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"

	pool, err := workerpool.New(4, 16, func(ctx context.Context, url string) (int, error) {
		return fetchStatus(ctx, url)
	})
	if err != nil {
		return err
	}
	pool.Start()

	go func() {
		defer pool.Close()
		feed.FromSlice[string](ctx, pool, urls)
	}()

	for r := range pool.All() {
		fmt.Println(r.Task, r.Value, r.Error)
	}

The cmd/taskpool binary wires these together into a file hashing service.
*/
package taskpool
