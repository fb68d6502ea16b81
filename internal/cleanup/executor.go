/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cleanup carries out DELETE decisions against the external services.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/identity"
	"github.com/friendsincode/janitor/internal/library"
	"github.com/friendsincode/janitor/internal/metrics"
	"github.com/friendsincode/janitor/internal/retention"
	"github.com/friendsincode/janitor/internal/telemetry"
)

// Steps of an item cleanup, in execution order.
const (
	StepLibrary     = "library"
	StepRequests    = "requests"
	StepMediaServer = "media_server"
)

// Remover deletes items from their library manager and reports how many
// were still present. library.Provider satisfies it.
type Remover interface {
	Remove(ctx context.Context, mediaType library.MediaType, items []library.Item) (int, error)
}

// RequestTracker clears the requests that brought an item in.
type RequestTracker interface {
	CleanupRequests(ctx context.Context, item library.Item) error
}

// Purger removes an item's entries from the media server.
type Purger interface {
	Purge(ctx context.Context, mediaType library.MediaType, key library.LookupKey, serverIDs []string) error
}

// Status is the outcome of cleaning up one item.
type Status string

const (
	StatusDeleted        Status = "deleted"
	StatusPartial        Status = "partial"
	StatusFailed         Status = "failed"
	StatusAlreadyRemoved Status = "already_removed"
	StatusDryRun         Status = "dry_run"
)

// Outcome describes what happened to one DELETE decision.
type Outcome struct {
	ItemID     int               `json:"item_id"`
	MediaType  library.MediaType `json:"media_type"`
	Label      string            `json:"label"`
	Status     Status            `json:"status"`
	BytesFreed int64             `json:"bytes_freed"`
	Errors     []string          `json:"errors,omitempty"`

	errs []error
}

// Err joins the step failures of the outcome.
func (o Outcome) Err() error { return errors.Join(o.errs...) }

// Report summarises one Execute call.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Outcomes   []Outcome `json:"outcomes"`
	Deleted    int       `json:"deleted"`
	Partial    int       `json:"partial"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"already_removed"`
	BytesFreed int64     `json:"bytes_freed"`
}

// Config tunes execution.
type Config struct {
	DryRun bool
	// Parallelism bounds how many items are cleaned up concurrently.
	Parallelism int
	// RatePerSecond limits collaborator calls. Zero disables the limit.
	RatePerSecond float64
	Burst         int
	// CallTimeout bounds each collaborator call.
	CallTimeout time.Duration
	// Granularity selects the media-server purge key. With show granularity
	// all seasons of a show share one purge.
	Granularity identity.Granularity
}

// Executor performs the cleanup of DELETE decisions.
type Executor struct {
	cfg      Config
	library  Remover
	requests RequestTracker
	server   Purger
	recorder *metrics.Recorder
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewExecutor creates an executor. recorder receives one event per item the
// library manager actually removed.
func NewExecutor(cfg Config, lib Remover, requests RequestTracker, server Purger, recorder *metrics.Recorder, logger zerolog.Logger) *Executor {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.Granularity == "" {
		cfg.Granularity = identity.BySeason
	}
	e := &Executor{
		cfg:      cfg,
		library:  lib,
		requests: requests,
		server:   server,
		recorder: recorder,
		logger:   logger.With().Str("component", "cleanup").Logger(),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return e
}

// DryRun reports whether the executor only simulates.
func (e *Executor) DryRun() bool { return e.cfg.DryRun }

// Execute cleans up every DELETE decision. Other kinds are ignored. A failing
// item never stops the batch; its failure is part of the report.
func (e *Executor) Execute(ctx context.Context, decisions []retention.Decision) Report {
	return e.execute(ctx, decisions, e.cfg.DryRun)
}

// Simulate reports what Execute would do without calling any collaborator.
func (e *Executor) Simulate(decisions []retention.Decision) Report {
	return e.execute(context.Background(), decisions, true)
}

func (e *Executor) execute(ctx context.Context, decisions []retention.Decision, dryRun bool) Report {
	report := Report{StartedAt: time.Now(), DryRun: dryRun}

	var targets []library.Item
	retained := make(map[int]bool)
	for _, d := range decisions {
		switch {
		case d.Kind == retention.Delete:
			targets = append(targets, d.Item)
		case d.Item.Type == library.TV:
			retained[d.Item.ID] = true
		}
	}
	report.Outcomes = make([]Outcome, len(targets))

	if dryRun {
		for i, item := range targets {
			report.Outcomes[i] = Outcome{ItemID: item.ID, MediaType: item.Type, Label: item.Label(), Status: StatusDryRun, BytesFreed: item.SizeBytes}
			e.logger.Info().Str("item", item.Label()).Int64("bytes", item.SizeBytes).Msg("dry run: would delete")
		}
		report.FinishedAt = time.Now()
		return report
	}

	var purged sync.Map
	var g errgroup.Group
	g.SetLimit(e.cfg.Parallelism)
	for i, item := range targets {
		g.Go(func() error {
			report.Outcomes[i] = e.cleanupItem(ctx, item, retained[item.ID], &purged)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range report.Outcomes {
		switch o.Status {
		case StatusDeleted:
			report.Deleted++
		case StatusPartial:
			report.Partial++
		case StatusFailed:
			report.Failed++
		case StatusAlreadyRemoved:
			report.Skipped++
		}
		report.BytesFreed += o.BytesFreed
		telemetry.CleanupItemsTotal.WithLabelValues(string(o.MediaType), string(o.Status)).Inc()
	}
	report.FinishedAt = time.Now()

	e.logger.Info().
		Int("deleted", report.Deleted).
		Int("partial", report.Partial).
		Int("failed", report.Failed).
		Int("already_removed", report.Skipped).
		Int64("bytes_freed", report.BytesFreed).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("cleanup finished")
	return report
}

func (e *Executor) cleanupItem(ctx context.Context, item library.Item, showRetained bool, purged *sync.Map) Outcome {
	out := Outcome{ItemID: item.ID, MediaType: item.Type, Label: item.Label()}
	logger := e.logger.With().Str("item", out.Label).Str("media_type", string(item.Type)).Logger()

	fail := func(step string, err error) {
		out.errs = append(out.errs, &faults.ExecutionError{ItemID: item.ID, Step: step, Err: err})
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", step, err))
		telemetry.CollaboratorErrorsTotal.WithLabelValues(step, "cleanup").Inc()
		logger.Warn().Err(err).Str("step", step).Msg("cleanup step failed")
	}

	removed := false
	var present int
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		present, err = e.library.Remove(ctx, item.Type, []library.Item{item})
		return err
	})
	switch {
	case err == nil && present > 0:
		removed = true
		out.BytesFreed = item.SizeBytes
		if e.recorder != nil {
			e.recorder.Record(string(item.Type), 1, item.SizeBytes)
		}
		telemetry.CleanupBytesFreedTotal.WithLabelValues(string(item.Type)).Add(float64(item.SizeBytes))
	case err == nil:
		logger.Info().Msg("already removed from library manager")
	default:
		fail(StepLibrary, err)
		out.Status = StatusFailed
		return out
	}

	if e.requests != nil {
		if err := e.call(ctx, func(ctx context.Context) error {
			return e.requests.CleanupRequests(ctx, item)
		}); err != nil {
			fail(StepRequests, err)
		}
	}

	if e.server != nil {
		if err := e.purge(ctx, item, showRetained, purged); err != nil {
			fail(StepMediaServer, err)
		}
	}

	switch {
	case !removed:
		out.Status = StatusAlreadyRemoved
	case len(out.errs) > 0:
		out.Status = StatusPartial
	default:
		out.Status = StatusDeleted
		logger.Info().Int64("bytes", item.SizeBytes).Msg("item deleted")
	}
	return out
}

// purge removes the media-server entries once per lookup key. A whole-show
// purge is only issued when no season of the show stays in the library;
// otherwise the season alone is purged and the server resolves it by key,
// since the show-level server ids cover the retained seasons too.
func (e *Executor) purge(ctx context.Context, item library.Item, showRetained bool, purged *sync.Map) error {
	key, err := identity.KeyFor(&item, e.cfg.Granularity)
	if err != nil {
		return err
	}
	serverIDs := item.MediaServerIDs
	if season, ok := item.SeasonNumber(); ok && showRetained && !key.HasSeason {
		key = library.SeasonKey(item.ID, season)
		serverIDs = nil
	}
	if _, done := purged.LoadOrStore(string(item.Type)+"/"+key.String(), struct{}{}); done {
		return nil
	}
	return e.call(ctx, func(ctx context.Context) error {
		return e.server.Purge(ctx, item.Type, key, serverIDs)
	})
}

// call waits for the rate limiter and runs fn under the per-call timeout.
func (e *Executor) call(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	return fn(ctx)
}
