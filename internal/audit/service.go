/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit keeps the history of retention ticks: a summary row per
// tick, one record per decision, and an archived JSON report.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/janitor/internal/cleanup"
	"github.com/friendsincode/janitor/internal/models"
	"github.com/friendsincode/janitor/internal/retention"
	"github.com/friendsincode/janitor/internal/storage"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("tick run not found")

// Run is everything recorded about one tick.
type Run struct {
	ID         string               `json:"id"`
	Trigger    string               `json:"trigger"`
	DryRun     bool                 `json:"dry_run"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Decisions  []retention.Decision `json:"decisions"`
	Cleanup    cleanup.Report       `json:"cleanup"`
	Errors     []string             `json:"errors,omitempty"`
}

// Service stores tick runs.
type Service struct {
	db     *gorm.DB
	store  storage.ObjectStore
	logger zerolog.Logger
}

// NewService creates an audit service. store may be nil to skip archiving.
func NewService(db *gorm.DB, store storage.ObjectStore, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		store:  store,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record persists run. The archive upload is best effort and only logged.
func (s *Service) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	finished := run.FinishedAt
	counts := retention.Counts(run.Decisions)
	row := models.TickRun{
		ID:          run.ID,
		Trigger:     run.Trigger,
		DryRun:      run.DryRun,
		StartedAt:   run.StartedAt,
		FinishedAt:  &finished,
		Kept:        counts[retention.Keep],
		LeavingSoon: counts[retention.LeavingSoon],
		Held:        counts[retention.HoldSeeding],
		Deleted:     run.Cleanup.Deleted + run.Cleanup.Partial,
		Failed:      run.Cleanup.Failed,
		BytesFreed:  run.Cleanup.BytesFreed,
		Errors:      run.Errors,
	}
	if run.DryRun {
		row.Deleted = counts[retention.Delete]
	}

	outcomes := make(map[string]cleanup.Status, len(run.Cleanup.Outcomes))
	for _, o := range run.Cleanup.Outcomes {
		outcomes[outcomeKey(o.MediaType, o.ItemID, o.Label)] = o.Status
	}
	records := make([]models.DecisionRecord, 0, len(run.Decisions))
	for _, d := range run.Decisions {
		records = append(records, models.DecisionRecord{
			ID:        uuid.NewString(),
			RunID:     run.ID,
			ItemID:    d.Item.ID,
			MediaType: string(d.Item.Type),
			Season:    d.Item.Season,
			Title:     d.Item.Title,
			Kind:      string(d.Kind),
			Source:    d.Source,
			Reason:    d.Reason,
			Outcome:   string(outcomes[outcomeKey(d.Item.Type, d.Item.ID, d.Item.Label())]),
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert tick run: %w", err)
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(records, 200).Error; err != nil {
				return fmt.Errorf("insert decisions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.archive(ctx, run)
	return nil
}

func outcomeKey(mediaType any, id int, label string) string {
	return fmt.Sprintf("%v/%d/%s", mediaType, id, label)
}

// ReportKey is the object key a run's report is archived under.
func ReportKey(run *Run) string {
	return fmt.Sprintf("runs/%s/%s.json", run.StartedAt.UTC().Format("2006/01/02"), run.ID)
}

func (s *Service) archive(ctx context.Context, run *Run) {
	if s.store == nil {
		return
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("encode tick report")
		return
	}
	if err := s.store.Put(ctx, ReportKey(run), data); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("archive tick report failed")
	}
}

// ListRuns returns the most recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]models.TickRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var runs []models.TickRun
	err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// GetRun returns a run with its decisions.
func (s *Service) GetRun(ctx context.Context, id string) (*models.TickRun, []models.DecisionRecord, error) {
	var run models.TickRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRunNotFound
		}
		return nil, nil, err
	}
	var decisions []models.DecisionRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", id).Order("media_type, item_id, season").Find(&decisions).Error; err != nil {
		return nil, nil, err
	}
	return &run, decisions, nil
}

// Prune deletes runs started before cutoff together with their decisions.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&models.TickRun{}).Select("id").Where("started_at < ?", cutoff)
		if err := tx.Where("run_id IN (?)", old).Delete(&models.DecisionRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("started_at < ?", cutoff).Delete(&models.TickRun{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("prune tick runs: %w", err)
	}
	if removed > 0 {
		s.logger.Info().Int64("runs", removed).Msg("pruned old tick runs")
	}
	return removed, nil
}
