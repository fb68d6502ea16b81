/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api serves the management HTTP API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/janitor/internal/audit"
	"github.com/friendsincode/janitor/internal/auth"
	"github.com/friendsincode/janitor/internal/events"
	"github.com/friendsincode/janitor/internal/library"
	"github.com/friendsincode/janitor/internal/logbuffer"
	"github.com/friendsincode/janitor/internal/metrics"
	"github.com/friendsincode/janitor/internal/models"
	"github.com/friendsincode/janitor/internal/rules"
	"github.com/friendsincode/janitor/internal/scheduler"
	"github.com/friendsincode/janitor/internal/telemetry"
	"github.com/friendsincode/janitor/internal/version"
)

// Ticker runs retention ticks. scheduler.Service satisfies it.
type Ticker interface {
	RunOnce(ctx context.Context, trigger string, dryRun bool) (*audit.Run, error)
	DryRun() bool
	LastRun() *audit.Run
}

// RuleStore is the rule persistence used by the API. rules.Store satisfies it.
type RuleStore interface {
	List(ctx context.Context) ([]rules.Rule, error)
	Get(ctx context.Context, id string) (*rules.Rule, error)
	Save(ctx context.Context, rule *rules.Rule) error
	Delete(ctx context.Context, id string) error
}

// RunStore reads recorded ticks. audit.Service satisfies it.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]models.TickRun, error)
	GetRun(ctx context.Context, id string) (*models.TickRun, []models.DecisionRecord, error)
}

// Deps are the services behind the API. Nil fields disable their routes.
type Deps struct {
	DB        *gorm.DB
	Ticker    Ticker
	Rules     RuleStore
	Evaluator *rules.Evaluator
	Library   *library.Provider
	Disk      scheduler.DiskProbe
	Runs      RunStore
	Recorder  *metrics.Recorder
	Logs      *logbuffer.Buffer
	Bus       *events.Bus
	Auth      *auth.Authenticator
	// IsLeader reports whether this instance runs scheduled ticks.
	IsLeader func() bool
}

// API exposes HTTP handlers.
type API struct {
	deps   Deps
	logger zerolog.Logger
}

// New constructs the API.
func New(deps Deps, logger zerolog.Logger) *API {
	if deps.Evaluator == nil {
		deps.Evaluator = rules.NewEvaluator(logger)
	}
	if deps.Auth == nil {
		deps.Auth = auth.NewAuthenticator(nil, nil)
	}
	return &API{deps: deps, logger: logger.With().Str("component", "api").Logger()}
}

// Routes registers the API on r.
func (a *API) Routes(r chi.Router) {
	r.Use(telemetry.MetricsMiddleware)

	r.Get("/healthz", a.handleHealth)
	r.Get("/version", a.handleVersion)
	r.Handle("/metrics", telemetry.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(a.deps.Auth.Middleware)
			pr.Use(a.deps.Auth.Require(auth.RoleViewer))
			viewer := pr
			admin := pr.With(a.deps.Auth.Require(auth.RoleAdmin))

			viewer.Get("/status", a.handleStatus)
			viewer.Get("/metrics/summary", a.handleMetricsSummary)
			viewer.Get("/metrics/history", a.handleMetricsHistory)
			viewer.Get("/events", a.handleEvents)

			viewer.Get("/runs", a.handleRunsList)
			viewer.Get("/runs/{runID}", a.handleRunsGet)
			admin.Post("/cleanup/run", a.handleCleanupRun)

			viewer.Get("/rules", a.handleRulesList)
			viewer.Get("/rules/{ruleID}", a.handleRulesGet)
			viewer.Post("/rules/validate", a.handleRulesValidate)
			viewer.Post("/rules/preview", a.handleRulesPreview)
			admin.Post("/rules", a.handleRulesCreate)
			admin.Put("/rules/{ruleID}", a.handleRulesUpdate)
			admin.Delete("/rules/{ruleID}", a.handleRulesDelete)

			admin.Get("/logs", a.handleLogs)
		})
	})
}

// ComponentStatus is the state of one dependency.
type ComponentStatus struct {
	Status  string `json:"status"` // ok, error, unavailable
	Message string `json:"message,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	db := a.databaseStatus(r.Context())
	if db.Status == "error" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"status": db.Status, "database": db})
}

func (a *API) databaseStatus(ctx context.Context) ComponentStatus {
	if a.deps.DB == nil {
		return ComponentStatus{Status: "unavailable"}
	}
	sqlDB, err := a.deps.DB.DB()
	if err != nil {
		return ComponentStatus{Status: "error", Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return ComponentStatus{Status: "error", Message: err.Error()}
	}
	return ComponentStatus{Status: "ok"}
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Current())
}

type statusResponse struct {
	Version   version.Info    `json:"version"`
	DryRun    bool            `json:"dry_run"`
	Leader    bool            `json:"leader"`
	Database  ComponentStatus `json:"database"`
	LastRun   *runSummary     `json:"last_run,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:   version.Current(),
		Leader:    true,
		Database:  a.databaseStatus(r.Context()),
		Timestamp: time.Now().UTC(),
	}
	if a.deps.IsLeader != nil {
		resp.Leader = a.deps.IsLeader()
	}
	if a.deps.Ticker != nil {
		resp.DryRun = a.deps.Ticker.DryRun()
		if run := a.deps.Ticker.LastRun(); run != nil {
			s := summarize(run)
			resp.LastRun = &s
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
