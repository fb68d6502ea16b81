/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/models"
)

// ErrRuleNotFound is returned when a rule id does not exist.
var ErrRuleNotFound = errors.New("rule not found")

// DefaultMaxRules caps how many rules may be enabled at once.
const DefaultMaxRules = 100

// Source supplies the rules a tick evaluates.
type Source interface {
	LoadEnabled(ctx context.Context) ([]Rule, error)
}

// definition is the JSON column layout of a stored rule.
type definition struct {
	Logic      Logic       `json:"logic"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	Schedule   *Schedule   `json:"schedule,omitempty"`
}

// Store persists rules in the database.
type Store struct {
	db       *gorm.DB
	logger   zerolog.Logger
	maxRules int
}

// NewStore creates a rule store. maxRules <= 0 uses DefaultMaxRules.
func NewStore(db *gorm.DB, maxRules int, logger zerolog.Logger) *Store {
	if maxRules <= 0 {
		maxRules = DefaultMaxRules
	}
	return &Store{
		db:       db,
		maxRules: maxRules,
		logger:   logger.With().Str("component", "rule_store").Logger(),
	}
}

// LoadEnabled returns the enabled rules in priority order. More enabled rules
// than maxRules, or a stored rule that no longer decodes or validates, is a
// ConfigurationError: a partial rule set is never returned.
func (s *Store) LoadEnabled(ctx context.Context) ([]Rule, error) {
	var rows []models.RetentionRule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("priority ASC, name ASC, id ASC").
		Limit(s.maxRules + 1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load enabled rules: %w", err)
	}
	if len(rows) > s.maxRules {
		return nil, faults.Configf("rules", "more than %d enabled rules", s.maxRules)
	}
	out := make([]Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := fromModel(row)
		if err != nil {
			return nil, faults.Configf("rule "+row.ID, "%v", err)
		}
		if err := Validate(&rule); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// List returns every stored rule in priority order.
func (s *Store) List(ctx context.Context) ([]Rule, error) {
	var rows []models.RetentionRule
	if err := s.db.WithContext(ctx).Order("priority ASC, name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out := make([]Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := fromModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// Get loads a single rule.
func (s *Store) Get(ctx context.Context, id string) (*Rule, error) {
	var row models.RetentionRule
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	rule, err := fromModel(row)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// Save validates and stores rule, assigning an ID when it has none.
func (s *Store) Save(ctx context.Context, rule *Rule) error {
	normalize(rule)
	if err := Validate(rule); err != nil {
		return err
	}
	if rule.Enabled {
		if err := s.checkCapacity(ctx, rule.ID); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	row, err := toModel(rule)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save rule: %w", err)
	}
	s.logger.Info().Str("rule_id", rule.ID).Str("name", rule.Name).Msg("rule saved")
	return nil
}

// checkCapacity rejects enabling another rule once maxRules are enabled.
// The rule being saved is not counted against itself.
func (s *Store) checkCapacity(ctx context.Context, id string) error {
	var enabled int64
	q := s.db.WithContext(ctx).Model(&models.RetentionRule{}).Where("enabled = ?", true)
	if id != "" {
		q = q.Where("id <> ?", id)
	}
	if err := q.Count(&enabled).Error; err != nil {
		return fmt.Errorf("count enabled rules: %w", err)
	}
	if enabled >= int64(s.maxRules) {
		return faults.Configf("rules", "at most %d rules may be enabled", s.maxRules)
	}
	return nil
}

// Delete removes a rule.
func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.RetentionRule{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func toModel(rule *Rule) (models.RetentionRule, error) {
	def, err := json.Marshal(definition{
		Logic:      rule.Logic,
		Conditions: rule.Conditions,
		Actions:    rule.Actions,
		Schedule:   rule.Schedule,
	})
	if err != nil {
		return models.RetentionRule{}, fmt.Errorf("encode rule %s: %w", rule.Name, err)
	}
	return models.RetentionRule{
		ID:          rule.ID,
		Name:        rule.Name,
		Description: rule.Description,
		Enabled:     rule.Enabled,
		Priority:    rule.Priority,
		Definition:  string(def),
		CreatedAt:   rule.CreatedAt,
		UpdatedAt:   rule.UpdatedAt,
	}, nil
}

func fromModel(row models.RetentionRule) (Rule, error) {
	var def definition
	if err := json.Unmarshal([]byte(row.Definition), &def); err != nil {
		return Rule{}, fmt.Errorf("decode rule %s: %w", row.ID, err)
	}
	rule := Rule{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Enabled:     row.Enabled,
		Priority:    row.Priority,
		Logic:       def.Logic,
		Conditions:  def.Conditions,
		Actions:     def.Actions,
		Schedule:    def.Schedule,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	normalize(&rule)
	return rule, nil
}
