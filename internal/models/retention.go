/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// RetentionRule persists a custom rule. Definition holds the JSON encoded
// conditions, actions and schedule; the scalar columns are kept for querying.
type RetentionRule struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Enabled     bool      `gorm:"index;not null" json:"enabled"`
	Priority    int       `gorm:"not null" json:"priority"`
	Definition  string    `gorm:"type:text;not null" json:"definition"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (RetentionRule) TableName() string {
	return "retention_rules"
}

// TickRun records one execution of the retention pipeline.
type TickRun struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	Trigger     string     `gorm:"type:varchar(32)" json:"trigger"`
	DryRun      bool       `json:"dry_run"`
	StartedAt   time.Time  `gorm:"index;not null" json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Kept        int        `json:"kept"`
	LeavingSoon int        `json:"leaving_soon"`
	Held        int        `json:"held"`
	Deleted     int        `json:"deleted"`
	Failed      int        `json:"failed"`
	BytesFreed  int64      `json:"bytes_freed"`
	Errors      []string   `gorm:"serializer:json" json:"errors,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName returns the table name for GORM.
func (TickRun) TableName() string {
	return "tick_runs"
}

// DecisionRecord is the audit trail entry for one item in one tick.
type DecisionRecord struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	RunID     string    `gorm:"type:uuid;index;not null" json:"run_id"`
	ItemID    int       `gorm:"index" json:"item_id"`
	MediaType string    `gorm:"type:varchar(16)" json:"media_type"`
	Season    *int      `json:"season,omitempty"`
	Title     string    `gorm:"type:varchar(512)" json:"title"`
	Kind      string    `gorm:"type:varchar(32);index" json:"kind"`
	Source    string    `gorm:"type:varchar(255)" json:"source"`
	Reason    string    `gorm:"type:text" json:"reason"`
	Outcome   string    `gorm:"type:varchar(32)" json:"outcome,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (DecisionRecord) TableName() string {
	return "decision_records"
}
