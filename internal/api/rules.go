/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/janitor/internal/events"
	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/library"
	"github.com/friendsincode/janitor/internal/rules"
)

// ruleRequest is the JSON body for creating or updating a rule. Enabled
// defaults to true.
type ruleRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Enabled     *bool             `json:"enabled"`
	Logic       rules.Logic       `json:"logic"`
	Priority    int               `json:"priority"`
	Conditions  []rules.Condition `json:"conditions"`
	Actions     []rules.Action    `json:"actions"`
	Schedule    *rules.Schedule   `json:"schedule"`
}

func (req ruleRequest) rule(id string) rules.Rule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return rules.Rule{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Enabled:     enabled,
		Logic:       req.Logic,
		Priority:    req.Priority,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		Schedule:    req.Schedule,
	}
}

type previewRequest struct {
	Rule ruleRequest `json:"rule"`
	// MediaType limits the preview to one type. Empty previews every type.
	MediaType string `json:"media_type"`
	// Limit caps the returned matches. Zero returns all.
	Limit int `json:"limit"`
}

type previewItem struct {
	ID        int               `json:"id"`
	Type      library.MediaType `json:"type"`
	Label     string            `json:"label"`
	SizeBytes int64             `json:"size_bytes"`
}

func (a *API) handleRulesList(w http.ResponseWriter, r *http.Request) {
	if a.deps.Rules == nil {
		writeError(w, http.StatusServiceUnavailable, "rules_unavailable")
		return
	}
	list, err := a.deps.Rules.List(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list rules failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if list == nil {
		list = []rules.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": list, "total": len(list)})
}

func (a *API) handleRulesGet(w http.ResponseWriter, r *http.Request) {
	if a.deps.Rules == nil {
		writeError(w, http.StatusServiceUnavailable, "rules_unavailable")
		return
	}
	rule, err := a.deps.Rules.Get(r.Context(), chi.URLParam(r, "ruleID"))
	if errors.Is(err, rules.ErrRuleNotFound) {
		writeError(w, http.StatusNotFound, "rule_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get rule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) handleRulesCreate(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	rule := req.rule("")
	a.saveRule(w, r, &rule, http.StatusCreated)
}

func (a *API) handleRulesUpdate(w http.ResponseWriter, r *http.Request) {
	if a.deps.Rules == nil {
		writeError(w, http.StatusServiceUnavailable, "rules_unavailable")
		return
	}
	existing, err := a.deps.Rules.Get(r.Context(), chi.URLParam(r, "ruleID"))
	if errors.Is(err, rules.ErrRuleNotFound) {
		writeError(w, http.StatusNotFound, "rule_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	rule := req.rule(existing.ID)
	rule.CreatedAt = existing.CreatedAt
	a.saveRule(w, r, &rule, http.StatusOK)
}

func (a *API) saveRule(w http.ResponseWriter, r *http.Request, rule *rules.Rule, status int) {
	if a.deps.Rules == nil {
		writeError(w, http.StatusServiceUnavailable, "rules_unavailable")
		return
	}
	err := a.deps.Rules.Save(r.Context(), rule)
	if faults.IsConfiguration(err) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "invalid_rule",
			"problems": rules.Problems(rule),
		})
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("save rule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	a.publish(events.EventRuleSaved, events.Payload{"rule_id": rule.ID, "name": rule.Name})
	writeJSON(w, status, rule)
}

func (a *API) handleRulesDelete(w http.ResponseWriter, r *http.Request) {
	if a.deps.Rules == nil {
		writeError(w, http.StatusServiceUnavailable, "rules_unavailable")
		return
	}
	id := chi.URLParam(r, "ruleID")
	err := a.deps.Rules.Delete(r.Context(), id)
	if errors.Is(err, rules.ErrRuleNotFound) {
		writeError(w, http.StatusNotFound, "rule_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("delete rule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	a.publish(events.EventRuleDeleted, events.Payload{"rule_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRulesValidate(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	rule := req.rule("")
	if err := rules.Prepare(&rule); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "problems": rules.Problems(&rule)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "problems": []string{}})
}

// handleRulesPreview lists the library items a rule would match right now,
// without storing the rule or acting on the items.
func (a *API) handleRulesPreview(w http.ResponseWriter, r *http.Request) {
	if a.deps.Library == nil {
		writeError(w, http.StatusServiceUnavailable, "library_unavailable")
		return
	}
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	rule := req.Rule.rule("preview")
	if err := rules.Prepare(&rule); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "invalid_rule",
			"problems": rules.Problems(&rule),
		})
		return
	}

	types := a.deps.Library.Types()
	if req.MediaType != "" {
		mt, err := library.ParseMediaType(req.MediaType)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_media_type")
			return
		}
		types = []library.MediaType{mt}
	}

	sig := rules.Signals{Now: time.Now()}
	if a.deps.Disk != nil {
		if free, err := a.deps.Disk.FreePercent(r.Context()); err == nil {
			sig.DiskUsagePercent = 100 - free
			sig.DiskKnown = true
		}
	}

	matches := []previewItem{}
	scanned := 0
	for _, mt := range types {
		items, err := a.deps.Library.Snapshot(r.Context(), mt)
		if err != nil {
			a.logger.Warn().Err(err).Str("media_type", string(mt)).Msg("preview snapshot failed")
			writeError(w, http.StatusBadGateway, "library_unavailable")
			return
		}
		scanned += len(items)
		for _, item := range a.deps.Evaluator.Preview(&rule, items, sig) {
			matches = append(matches, previewItem{ID: item.ID, Type: item.Type, Label: item.Label(), SizeBytes: item.SizeBytes})
		}
	}

	total := len(matches)
	if req.Limit > 0 && total > req.Limit {
		matches = matches[:req.Limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": matches,
		"total":   total,
		"scanned": scanned,
	})
}

func (a *API) publish(eventType events.EventType, payload events.Payload) {
	if a.deps.Bus != nil {
		a.deps.Bus.Publish(eventType, payload)
	}
}
