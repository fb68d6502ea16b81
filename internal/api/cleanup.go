/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/janitor/internal/audit"
	"github.com/friendsincode/janitor/internal/metrics"
	"github.com/friendsincode/janitor/internal/retention"
	"github.com/friendsincode/janitor/internal/scheduler"
)

type runSummary struct {
	ID         string                 `json:"id"`
	Trigger    string                 `json:"trigger"`
	DryRun     bool                   `json:"dry_run"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Decisions  map[retention.Kind]int `json:"decisions"`
	Deleted    int                    `json:"deleted"`
	Partial    int                    `json:"partial"`
	Failed     int                    `json:"failed"`
	Skipped    int                    `json:"already_removed"`
	BytesFreed int64                  `json:"bytes_freed"`
	Errors     []string               `json:"errors,omitempty"`
}

func summarize(run *audit.Run) runSummary {
	return runSummary{
		ID:         run.ID,
		Trigger:    run.Trigger,
		DryRun:     run.DryRun,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Decisions:  retention.Counts(run.Decisions),
		Deleted:    run.Cleanup.Deleted,
		Partial:    run.Cleanup.Partial,
		Failed:     run.Cleanup.Failed,
		Skipped:    run.Cleanup.Skipped,
		BytesFreed: run.Cleanup.BytesFreed,
		Errors:     run.Errors,
	}
}

// handleCleanupRun runs a tick now. dry_run defaults to the configured mode;
// verbose=true includes every decision.
func (a *API) handleCleanupRun(w http.ResponseWriter, r *http.Request) {
	if a.deps.Ticker == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable")
		return
	}
	dryRun := a.deps.Ticker.DryRun()
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dry_run")
			return
		}
		dryRun = v
	}

	run, err := a.deps.Ticker.RunOnce(r.Context(), scheduler.TriggerManual, dryRun)
	if errors.Is(err, scheduler.ErrTickInProgress) {
		writeError(w, http.StatusConflict, "tick_in_progress")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("manual tick failed")
		writeError(w, http.StatusInternalServerError, "tick_failed")
		return
	}

	if verbose, _ := strconv.ParseBool(r.URL.Query().Get("verbose")); verbose {
		writeJSON(w, http.StatusOK, run)
		return
	}
	writeJSON(w, http.StatusOK, summarize(run))
}

func (a *API) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	if a.deps.Recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.deps.Recorder.Summary())
}

func (a *API) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	if a.deps.Recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics_unavailable")
		return
	}
	limit, ok := queryInt(r, "limit", 100)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	events := a.deps.Recorder.History(limit)
	if events == nil {
		events = []metrics.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "limit": limit})
}
