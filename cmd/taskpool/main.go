// taskpool hashes files on a bounded worker pool.
//
// Usage:
//
//	taskpool [global options] <command> [command options]
//
// Commands:
//
//	hash PATH...    print the SHA-256 digest of every file, once or on a schedule
//	consume         hash file paths popped from a Redis list until interrupted
//
// Exit codes:
//
//	0: every file was hashed
//	1: at least one file failed, or the host failed
//	2: usage error
//
// Examples:
//
//	taskpool hash go.mod go.sum
//	taskpool --workers 8 hash --schedule "@every 1m" /var/data/*.bin
//	taskpool --metrics-addr :9090 consume --redis-addr localhost:6379 --key jobs
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
)

// Version is set with -ldflags "-X main.Version=...".
var Version = "0.1.0-dev"

// failedError reports that some tasks failed after their errors were printed.
type failedError struct {
	failed int
}

func (e *failedError) Error() string {
	return fmt.Sprintf("%d task(s) failed", e.failed)
}

// usageError marks bad invocations and invalid configuration.
type usageError struct {
	msg string
	err error
}

func (e *usageError) Error() string { return e.msg }

func (e *usageError) Unwrap() error { return e.err }

// asUsage turns configuration errors into usage errors and passes others through.
func asUsage(err error) error {
	if errors.Is(err, tperrors.ErrInvalidConfiguration) {
		return &usageError{msg: err.Error(), err: err}
	}
	return err
}

// onUsageError reports flag parsing failures as usage errors.
func onUsageError(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return &usageError{msg: err.Error(), err: err}
}

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "taskpool",
		Usage:   "hash files on a bounded, cancellable worker pool",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "also write JSON logs to this rotated file",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus metrics on this address, e.g. :9090",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "number of workers",
			},
			&cli.IntFlag{
				Name:    "queue",
				Aliases: []string{"q"},
				Usage:   "task queue capacity (0 for an unbuffered handoff)",
			},
			&cli.DurationFlag{
				Name:  "task-timeout",
				Usage: "per-file timeout (0 disables)",
			},
		},
		Commands: []*cli.Command{
			createHashCommand(),
			createConsumeCommand(),
		},
		OnUsageError: onUsageError,
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, os.Args); err != nil {
		var failed *failedError
		if errors.As(err, &failed) {
			fmt.Fprintln(os.Stderr, "taskpool:", err)
			return 1
		}
		var usage *usageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, "taskpool: usage:", err)
			return 2
		}
		fmt.Fprintln(os.Stderr, "taskpool:", err)
		return 1
	}
	return 0
}
