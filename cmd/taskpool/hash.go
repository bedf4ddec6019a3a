package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vnykmshr/taskpool/pkg/scheduling/feed"
	"github.com/vnykmshr/taskpool/pkg/scheduling/middleware"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

// digest is the result of hashing one file.
type digest struct {
	Sum  string
	Size int64
}

// hashFile returns the SHA-256 of the file at path. It stops between
// reads once ctx is done.
func hashFile(ctx context.Context, path string) (digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return digest{}, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, &ctxReader{ctx: ctx, r: f})
	if err != nil {
		return digest{}, err
	}
	return digest{Sum: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// printResults writes one line per result until the stream ends and
// returns how many tasks failed.
func printResults(w io.Writer, pool *workerpool.Pool[string, digest]) int {
	failed := 0
	for r := range pool.All() {
		if r.Error != nil {
			failed++
			fmt.Fprintf(w, "ERROR  %s: %v\n", r.Task, r.Error)
			continue
		}
		fmt.Fprintf(w, "%s  %s\n", r.Value.Sum, r.Task)
	}
	return failed
}

// hashHandler decorates hashFile with the host's logging, metrics and
// optional rate limit.
func (h *host) hashHandler(extra ...middleware.Middleware[string, digest]) workerpool.Handler[string, digest] {
	mws := []middleware.Middleware[string, digest]{
		middleware.Logging[string, digest](h.logger.Named("hash")),
		middleware.Instrument[string, digest](h.metrics, "sha256"),
	}
	if h.cfg.Hash.RateLimit > 0 {
		burst := int(h.cfg.Hash.RateLimit)
		if burst < 1 {
			burst = 1
		}
		mws = append(mws, middleware.RateLimit[string, digest](rate.NewLimiter(rate.Limit(h.cfg.Hash.RateLimit), burst)))
	}
	return middleware.Chain(hashFile, append(mws, extra...)...)
}

// storageBreaker trips after repeated I/O failures so a dead mount fails
// fast. Missing files are bad input, not a storage failure.
func storageBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker[digest] {
	return gobreaker.NewCircuitBreaker[digest](gobreaker.Settings{
		Name:    "storage",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
}

func createHashCommand() *cli.Command {
	return &cli.Command{
		Name:         "hash",
		Usage:        "print the SHA-256 digest of every file",
		ArgsUsage:    "PATH...",
		OnUsageError: onUsageError,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "schedule",
				Usage: `re-hash on a cron schedule, e.g. "@every 1m" or "*/5 * * * *"`,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "maximum files hashed per second (0 for no limit)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				return &usageError{msg: "hash needs at least one PATH"}
			}

			h, err := newHost(cmd)
			if err != nil {
				return err
			}
			defer h.close()

			if cmd.IsSet("schedule") {
				h.cfg.Hash.Schedule = cmd.String("schedule")
			}
			if cmd.IsSet("rate") {
				h.cfg.Hash.RateLimit = cmd.Float("rate")
			}
			if h.cfg.Hash.Schedule != "" {
				return h.hashScheduled(ctx, paths)
			}
			return h.hashOnce(ctx, paths)
		},
	}
}

// hashOnce hashes paths a single time. An interrupt cancels the pool.
func (h *host) hashOnce(ctx context.Context, paths []string) error {
	pool, err := workerpool.NewWithConfig(h.poolConfig(), h.hashHandler())
	if err != nil {
		return err
	}
	pool.StartWithContext(ctx)

	return h.execute(ctx, pool, func(ctx context.Context) error {
		n, err := feed.FromSlice[string](ctx, pool, paths)
		h.logger.Debug("submitted files", zap.Int("count", n))
		if err != nil && ctx.Err() == nil && !errors.Is(err, workerpool.ErrPoolCancelled) {
			return err
		}
		return nil
	})
}

// hashScheduled re-hashes paths on every tick until interrupted, then
// drains the pool within the configured grace period.
func (h *host) hashScheduled(ctx context.Context, paths []string) error {
	pool, err := workerpool.NewWithConfig(h.poolConfig(), h.hashHandler())
	if err != nil {
		return err
	}

	ticks, err := feed.NewCron[string](pool, h.cfg.Hash.Schedule, func(context.Context, time.Time) ([]string, error) {
		return paths, nil
	}, feed.Config{Name: "schedule", Logger: h.logger, Metrics: h.metrics})
	if err != nil {
		return &usageError{msg: err.Error()}
	}

	pool.Start()
	h.logger.Info("hashing on schedule", zap.String("schedule", h.cfg.Hash.Schedule), zap.Int("files", len(paths)))
	return h.execute(ctx, pool, ticks.Run)
}
