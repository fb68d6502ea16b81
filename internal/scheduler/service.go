/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler runs the retention pipeline on a schedule, one tick at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/audit"
	"github.com/friendsincode/janitor/internal/cleanup"
	"github.com/friendsincode/janitor/internal/config"
	"github.com/friendsincode/janitor/internal/events"
	"github.com/friendsincode/janitor/internal/identity"
	"github.com/friendsincode/janitor/internal/library"
	"github.com/friendsincode/janitor/internal/rules"
	"github.com/friendsincode/janitor/internal/seeding"
	"github.com/friendsincode/janitor/internal/services"
	"github.com/friendsincode/janitor/internal/telemetry"
)

// ErrTickInProgress is returned when another tick holds the lock.
var ErrTickInProgress = errors.New("a retention tick is already running")

// Trigger names why a tick ran.
const (
	TriggerInterval = "interval"
	TriggerCron     = "cron"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"
)

// RunRecorder persists finished ticks. audit.Service satisfies it.
type RunRecorder interface {
	Record(ctx context.Context, run *audit.Run) error
}

// Deps are the collaborators of a tick.
type Deps struct {
	Library     *library.Provider
	Correlator  *identity.Correlator
	Rules       rules.Source
	Evaluator   *rules.Evaluator
	Retention   *config.Retention
	Seeding     *seeding.Checker
	MediaServer services.MediaServer
	Tags        services.TagEditor
	Mover       services.Mover
	Executor    *cleanup.Executor
	Disk        DiskProbe
	Recorder    RunRecorder
	Bus         events.Publisher
}

// Options control when ticks run.
type Options struct {
	// Cron, when set, replaces Interval.
	Cron       string
	Interval   time.Duration
	RunOnStart bool
	// DryRun is the default mode of scheduled ticks.
	DryRun bool
	// LockFile guards against overlapping ticks of other processes.
	LockFile string
	Workers  int
}

// Service orchestrates retention ticks.
type Service struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger

	running  sync.Mutex
	fileLock *flock.Flock

	mu sync.RWMutex
	// lastScheduled is the start of the last scheduled, non-dry tick.
	lastScheduled time.Time
	lastRun       *audit.Run

	now func() time.Time
}

// New validates the options and constructs the service.
func New(deps Deps, opts Options, logger zerolog.Logger) (*Service, error) {
	if opts.Cron != "" {
		if _, err := cron.ParseStandard(opts.Cron); err != nil {
			return nil, fmt.Errorf("invalid tick cron %q: %w", opts.Cron, err)
		}
	} else if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if deps.Seeding == nil {
		deps.Seeding = seeding.NewChecker(nil, logger)
	}
	if deps.Evaluator == nil {
		deps.Evaluator = rules.NewEvaluator(logger)
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	s := &Service{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
	if opts.LockFile != "" {
		s.fileLock = flock.New(opts.LockFile)
	}
	return s, nil
}

// DryRun reports the default mode of scheduled ticks.
func (s *Service) DryRun() bool { return s.opts.DryRun }

// LastRun returns the most recent finished tick, or nil.
func (s *Service) LastRun() *audit.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// Run executes ticks on the configured schedule until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.opts.RunOnStart {
		s.scheduled(ctx, TriggerStartup)
	}
	if s.opts.Cron != "" {
		return s.runCron(ctx)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	s.logger.Info().Dur("interval", s.opts.Interval).Bool("dry_run", s.opts.DryRun).Msg("scheduler loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.scheduled(ctx, TriggerInterval)
		}
	}
}

func (s *Service) runCron(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.opts.Cron, func() { s.scheduled(ctx, TriggerCron) }); err != nil {
		return fmt.Errorf("schedule ticks: %w", err)
	}
	c.Start()
	s.logger.Info().Str("cron", s.opts.Cron).Bool("dry_run", s.opts.DryRun).Msg("scheduler cron started")
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("scheduler cron stopped")
	return ctx.Err()
}

func (s *Service) scheduled(ctx context.Context, trigger string) {
	if _, err := s.RunOnce(ctx, trigger, s.opts.DryRun); err != nil {
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("tick skipped")
	}
}

// RunOnce runs a single tick now. It returns ErrTickInProgress instead of
// waiting when another tick is running in this or another process.
func (s *Service) RunOnce(ctx context.Context, trigger string, dryRun bool) (*audit.Run, error) {
	if !s.running.TryLock() {
		telemetry.SchedulerSkippedTotal.WithLabelValues("in_process").Inc()
		return nil, ErrTickInProgress
	}
	defer s.running.Unlock()

	if s.fileLock != nil {
		locked, err := s.fileLock.TryLock()
		if err != nil {
			telemetry.SchedulerErrorsTotal.WithLabelValues("lock").Inc()
			return nil, fmt.Errorf("acquire tick lock: %w", err)
		}
		if !locked {
			telemetry.SchedulerSkippedTotal.WithLabelValues("lock_file").Inc()
			return nil, ErrTickInProgress
		}
		defer func() {
			if err := s.fileLock.Unlock(); err != nil {
				s.logger.Warn().Err(err).Msg("release tick lock")
			}
		}()
	}

	run := s.tick(ctx, trigger, dryRun)

	s.mu.Lock()
	if trigger != TriggerManual && !run.DryRun {
		s.lastScheduled = run.StartedAt
	}
	s.lastRun = run
	s.mu.Unlock()
	return run, nil
}

// since is the window start for scheduled rules. Manual and dry-run ticks
// never consume a cron firing.
func (s *Service) since() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastScheduled
}
