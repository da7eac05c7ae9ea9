package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"property_agent/internal/model"
)

// DefaultSchedule runs on Thursday and Friday mornings, when the week's
// sale lists are published.
const DefaultSchedule = "0 8 * * THU,FRI"

// Runner executes a single ingestion cycle.
type Runner interface {
	RunOnce(ctx context.Context) (model.RunReport, error)
}

// Scheduler triggers ingestion cycles on a cron schedule.
type Scheduler struct {
	runner     Runner
	log        *slog.Logger
	cron       *cron.Cron
	runOnStart bool
}

// New creates a Scheduler firing runner on spec, evaluated in loc.
func New(runner Runner, spec string, loc *time.Location, log *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
	)
	s := &Scheduler{runner: runner, log: log, cron: c, runOnStart: true}
	if _, err := c.AddFunc(spec, func() { s.trigger(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

// SetRunOnStart controls whether Run executes a cycle immediately.
func (s *Scheduler) SetRunOnStart(v bool) {
	s.runOnStart = v
}

// Run starts the scheduler, blocking until ctx is cancelled. In-flight
// cycles are allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	if s.runOnStart {
		s.trigger(ctx)
	}

	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info("next run scheduled", "at", e.Next)
	}

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
}

func (s *Scheduler) trigger(ctx context.Context) {
	_, err := s.runner.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.log.Warn("skipping scheduled run, previous run still in progress")
	case err != nil:
		s.log.Error("scheduled run", "error", err)
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
