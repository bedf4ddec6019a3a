/*
Package feed submits tasks into a worker pool from outside sources.

Every feed talks to the pool through the Submitter interface, which
*workerpool.Pool satisfies, so backpressure and the pool's lifecycle
errors reach the feed unchanged:

	n, err := feed.FromSlice[string](ctx, pool, paths)

	c, err := feed.NewCron[string](pool, "@every 10s", listDirectory, feed.Config{Name: "rescan"})
	go c.Run(ctx)

	q, err := feed.NewRedisList[string](client, "jobs", pool, feed.DecodeString, feed.Config{})
	err = q.Run(ctx)

Long-running feeds (Cron, RedisList) stop when their context ends,
returning nil, or when the pool refuses a task, returning that error.
*/
package feed
