package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/taskpool/internal/config"
	"github.com/vnykmshr/taskpool/internal/logging"
	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

const metricsShutdownTimeout = 5 * time.Second

// host is what every command needs: configuration, a logger and metrics.
type host struct {
	cfg      config.Config
	logger   *zap.Logger
	closeLog func() error
	prom     *prometheus.Registry
	metrics  *metrics.Registry
	out      io.Writer
}

func newHost(cmd *cli.Command) (*host, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, asUsage(err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.File = cfg.Log.File
	logCfg.Development = cfg.Log.Development
	logger, closeLog, err := logging.New(logCfg)
	if err != nil {
		return nil, asUsage(err)
	}

	prom := prometheus.NewRegistry()
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &host{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		prom:     prom,
		metrics:  metrics.NewRegistry(prom),
		out:      cmd.Root().Writer,
	}, nil
}

// loadConfig reads --config and applies the global flags that were set.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return cfg, err
	}

	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-file") {
		cfg.Log.File = cmd.String("log-file")
	}
	if cmd.IsSet("metrics-addr") {
		cfg.Metrics.Addr = cmd.String("metrics-addr")
	}
	if cmd.IsSet("workers") {
		cfg.Pool.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("queue") {
		cfg.Pool.Queue = cmd.Int("queue")
	}
	if cmd.IsSet("task-timeout") {
		cfg.Pool.TaskTimeout = cmd.Duration("task-timeout")
	}
	return cfg, cfg.Validate()
}

func (h *host) close() {
	if err := h.closeLog(); err != nil {
		fmt.Fprintln(os.Stderr, "taskpool: closing log:", err)
	}
}

func (h *host) poolConfig() workerpool.Config {
	return workerpool.Config{
		WorkerCount:  h.cfg.Pool.Workers,
		QueueSize:    h.cfg.Pool.Queue,
		ResultBuffer: h.cfg.Pool.ResultBuffer,
		TaskTimeout:  h.cfg.Pool.TaskTimeout,
		Name:         h.cfg.Pool.Name,
		Logger:       h.logger,
		Metrics:      h.metrics,
		PanicHandler: func(workerID int, recovered interface{}) {
			h.logger.Error("hash worker panicked", zap.Int("worker", workerID), zap.Any("panic", recovered))
		},
	}
}

// execute runs produce next to the metrics server and prints every
// result until the pool's result stream ends. produce must return once
// its context ends; the pool is shut down after it returns.
func (h *host) execute(ctx context.Context, pool *workerpool.Pool[string, digest], produce func(context.Context) error) error {
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		return h.serveMetrics(gctx)
	})
	g.Go(func() error {
		defer h.shutdown(pool)
		return produce(gctx)
	})

	failed := printResults(h.out, pool)
	stopServing()

	if err := g.Wait(); err != nil {
		return err
	}
	if failed > 0 {
		return &failedError{failed: failed}
	}
	return nil
}

// shutdown closes intake and cancels the pool if draining takes longer
// than the configured grace period.
func (h *host) shutdown(pool *workerpool.Pool[string, digest]) {
	if h.cfg.Pool.ShutdownTimeout > 0 {
		pool.ShutdownWithTimeout(h.cfg.Pool.ShutdownTimeout)
		return
	}
	pool.Shutdown()
}

// serveMetrics serves the Prometheus registry until ctx ends. It returns
// immediately when no address is configured.
func (h *host) serveMetrics(ctx context.Context) error {
	if h.cfg.Metrics.Addr == "" {
		return nil
	}

	lis, err := net.Listen("tcp", h.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("metrics: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(h.cfg.Metrics.Path, promhttp.HandlerFor(h.prom, promhttp.HandlerOpts{Registry: h.prom}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	h.logger.Info("serving metrics", zap.String("addr", lis.Addr().String()), zap.String("path", h.cfg.Metrics.Path))

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(lis) }()

	select {
	case err := <-errc:
		return fmt.Errorf("metrics: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve: %w", err)
	}
	return nil
}
