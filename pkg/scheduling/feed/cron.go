package feed

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
)

// Generator produces the tasks for one schedule tick.
type Generator[T any] func(ctx context.Context, tick time.Time) ([]T, error)

// Parser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as @hourly or @every 30s.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron submits the output of a Generator on every tick of a schedule.
// Ticks never overlap: a tick that is still submitting when the next one
// is due causes the next one to be skipped.
type Cron[T any] struct {
	schedule cron.Schedule
	sub      Submitter[T]
	generate Generator[T]
	logger   *zap.Logger
	count    counter
}

// NewCron parses spec with Parser and returns a Cron feeding sub.
func NewCron[T any](sub Submitter[T], spec string, generate Generator[T], cfg Config) (*Cron[T], error) {
	schedule, err := Parser.Parse(spec)
	if err != nil {
		return nil, tperrors.NewValidationError(module, "schedule", spec, err.Error()).
			WithHint("use five cron fields, six with seconds, or a descriptor like @every 1m")
	}
	return NewCronWithSchedule(sub, schedule, generate, cfg)
}

// NewCronWithSchedule is NewCron for an already built schedule.
func NewCronWithSchedule[T any](sub Submitter[T], schedule cron.Schedule, generate Generator[T], cfg Config) (*Cron[T], error) {
	if err := validation.First(
		validation.ValidateNotNil(module, "submitter", sub),
		validation.ValidateNotNil(module, "schedule", schedule),
		validation.ValidateNotNil(module, "generator", generate),
	); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults("cron")
	return &Cron[T]{
		schedule: schedule,
		sub:      sub,
		generate: generate,
		logger:   cfg.Logger.Named(module).With(zap.String("feed", cfg.Name)),
		count:    newCounter(cfg.Metrics, cfg.Name),
	}, nil
}

// Run blocks, submitting on every tick, until ctx ends (returning nil) or
// the submitter rejects a task for a reason other than ctx (returning
// that error). Generator errors are logged and the tick is skipped.
func (c *Cron[T]) Run(ctx context.Context) error {
	logger := cronLogger{c.logger.Sugar()}
	runner := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	rejected := make(chan error, 1)
	runner.Schedule(c.schedule, cron.FuncJob(func() {
		if err := c.tick(ctx, time.Now()); err != nil {
			select {
			case rejected <- err:
			default:
			}
		}
	}))

	runner.Start()
	c.logger.Debug("cron feed started")

	var err error
	select {
	case <-ctx.Done():
	case err = <-rejected:
	}

	<-runner.Stop().Done()
	c.logger.Debug("cron feed stopped", zap.Error(err))
	return err
}

func (c *Cron[T]) tick(ctx context.Context, at time.Time) error {
	tasks, err := c.generate(ctx, at)
	if err != nil {
		c.count.inc(OutcomeError)
		c.logger.Warn("generator failed", zap.Time("tick", at), zap.Error(err))
		return nil
	}

	for _, task := range tasks {
		if err := c.sub.SubmitWithContext(ctx, task); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.count.inc(OutcomeRejected)
			c.logger.Info("task rejected, stopping", zap.Error(err))
			return err
		}
		c.count.inc(OutcomeSubmitted)
	}
	return nil
}

// cronLogger routes the scheduler's own logging to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
