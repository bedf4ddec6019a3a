// Package config loads the taskpool host configuration from YAML.
//
// Values come from, in increasing precedence: Default, the YAML file, and
// command-line overrides applied by the caller.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
)

const module = "config"

// Config is the full host configuration.
type Config struct {
	Pool    Pool    `koanf:"pool"`
	Log     Log     `koanf:"log"`
	Metrics Metrics `koanf:"metrics"`
	Redis   Redis   `koanf:"redis"`
	Hash    Hash    `koanf:"hash"`
}

// Pool sizes the worker pool.
type Pool struct {
	Name         string        `koanf:"name"`
	Workers      int           `koanf:"workers"`
	Queue        int           `koanf:"queue"`
	ResultBuffer int           `koanf:"result_buffer"`
	TaskTimeout  time.Duration `koanf:"task_timeout"`
	// ShutdownTimeout bounds the graceful drain after an interrupt.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Log configures internal/logging.
type Log struct {
	Level       string `koanf:"level"`
	File        string `koanf:"file"`
	Development bool   `koanf:"development"`
}

// Metrics configures the Prometheus endpoint. An empty Addr disables it.
type Metrics struct {
	Addr string `koanf:"addr"`
	Path string `koanf:"path"`
}

// Redis configures the consume command.
type Redis struct {
	Addr        string        `koanf:"addr"`
	Key         string        `koanf:"key"`
	PollTimeout time.Duration `koanf:"poll_timeout"`
}

// Hash configures the hash command.
type Hash struct {
	Schedule string `koanf:"schedule"`
	// RateLimit caps hashed files per second; zero means unlimited.
	RateLimit float64 `koanf:"rate_limit"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	n := runtime.NumCPU()
	return Config{
		Pool: Pool{
			Name:            "taskpool",
			Workers:         n,
			Queue:           2 * n,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: Log{
			Level: "info",
		},
		Metrics: Metrics{
			Path: "/metrics",
		},
		Redis: Redis{
			Addr:        "localhost:6379",
			Key:         "taskpool:jobs",
			PollTimeout: time.Second,
		},
	}
}

// Load reads the YAML file at path over Default. An empty path returns
// Default unchanged.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: parse: %w: %w", tperrors.ErrInvalidConfiguration, err)
		}
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w: %w", tperrors.ErrInvalidConfiguration, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the values a pool or feed would reject later anyway,
// so a bad file fails at startup.
func (c Config) Validate() error {
	return validation.First(
		validation.ValidatePositive(module, "pool.workers", c.Pool.Workers),
		validation.ValidateNonNegative(module, "pool.queue", c.Pool.Queue),
		validation.ValidateNonNegative(module, "pool.result_buffer", c.Pool.ResultBuffer),
		validation.ValidateNonNegativeDuration(module, "pool.task_timeout", c.Pool.TaskTimeout),
		validation.ValidateNonNegativeDuration(module, "pool.shutdown_timeout", c.Pool.ShutdownTimeout),
		validation.ValidateNonNegativeDuration(module, "redis.poll_timeout", c.Redis.PollTimeout),
		validateRate(c.Hash.RateLimit),
	)
}

func validateRate(r float64) error {
	if r < 0 {
		return tperrors.NewValidationError(module, "hash.rate_limit", r, "cannot be negative").
			WithHint("use 0 for no limit")
	}
	return nil
}
