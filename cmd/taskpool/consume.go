package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskpool/pkg/scheduling/feed"
	"github.com/vnykmshr/taskpool/pkg/scheduling/middleware"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

func createConsumeCommand() *cli.Command {
	return &cli.Command{
		Name:         "consume",
		Usage:        "hash file paths popped from a Redis list until interrupted",
		OnUsageError: onUsageError,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "redis-addr",
				Usage: "Redis address",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "Redis list holding file paths",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			h, err := newHost(cmd)
			if err != nil {
				return err
			}
			defer h.close()

			if cmd.IsSet("redis-addr") {
				h.cfg.Redis.Addr = cmd.String("redis-addr")
			}
			if cmd.IsSet("key") {
				h.cfg.Redis.Key = cmd.String("key")
			}
			if h.cfg.Redis.Key == "" {
				return &usageError{msg: "consume needs a --key"}
			}

			client := redis.NewClient(&redis.Options{Addr: h.cfg.Redis.Addr})
			defer client.Close()

			return h.consume(ctx, client)
		},
	}
}

// consume runs the Redis feed into a breaker-protected hashing pool.
func (h *host) consume(ctx context.Context, client redis.Cmdable) error {
	handler := h.hashHandler(middleware.CircuitBreaker[string, digest](storageBreaker(h.logger)))
	pool, err := workerpool.NewWithConfig(h.poolConfig(), handler)
	if err != nil {
		return err
	}

	list, err := feed.NewRedisList[string](client, h.cfg.Redis.Key, pool, feed.DecodeString, feed.Config{
		Name:        "redis",
		Logger:      h.logger,
		Metrics:     h.metrics,
		PollTimeout: h.cfg.Redis.PollTimeout,
	})
	if err != nil {
		return err
	}

	pool.Start()
	h.logger.Info("consuming", zap.String("addr", h.cfg.Redis.Addr), zap.String("key", h.cfg.Redis.Key))
	return h.execute(ctx, pool, list.Run)
}
