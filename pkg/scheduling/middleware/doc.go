/*
Package middleware decorates workerpool handlers.

A Middleware wraps a Handler and returns a new one. Chain composes
several of them, the first one ending up outermost:

	h := middleware.Chain(resize,
		middleware.Logging[Image, Thumb](logger),
		middleware.Instrument[Image, Thumb](metrics.DefaultRegistry, "resize"),
		middleware.RateLimit[Image, Thumb](rate.NewLimiter(50, 10)),
		middleware.Timeout[Image, Thumb](2*time.Second),
	)
	pool, err := workerpool.New(8, 64, h)

Errors produced by a middleware travel in the task's Result like any
other handler error; they never affect the pool itself.
*/
package middleware
