/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/janitor/internal/audit"
	"github.com/friendsincode/janitor/internal/models"
)

func (a *API) handleRunsList(w http.ResponseWriter, r *http.Request) {
	if a.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_unavailable")
		return
	}
	limit, ok := queryInt(r, "limit", 50)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	runs, err := a.deps.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list runs failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if runs == nil {
		runs = []models.TickRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleRunsGet returns one run with its decisions, optionally filtered by kind.
func (a *API) handleRunsGet(w http.ResponseWriter, r *http.Request) {
	if a.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_unavailable")
		return
	}
	run, decisions, err := a.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, audit.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get run failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if kind := r.URL.Query().Get("kind"); kind != "" {
		filtered := decisions[:0]
		for _, d := range decisions {
			if d.Kind == kind {
				filtered = append(filtered, d)
			}
		}
		decisions = filtered
	}
	if decisions == nil {
		decisions = []models.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "decisions": decisions})
}
