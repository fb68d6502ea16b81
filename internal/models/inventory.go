/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// InventoryItem mirrors one library-manager asset: a movie or a single TV season.
type InventoryItem struct {
	ID             string     `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID     int        `gorm:"uniqueIndex:idx_inventory_identity;not null" json:"external_id"`
	MediaType      string     `gorm:"type:varchar(16);uniqueIndex:idx_inventory_identity;index;not null" json:"media_type"`
	Season         *int       `gorm:"uniqueIndex:idx_inventory_identity" json:"season,omitempty"`
	Title          string     `gorm:"type:varchar(512)" json:"title"`
	ImportedAt     time.Time  `gorm:"not null" json:"imported_at"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	OriginalPath   string     `gorm:"type:text" json:"original_path"`
	LibraryPath    string     `gorm:"type:text" json:"library_path"`
	ParentPath     string     `gorm:"type:text" json:"parent_path"`
	RootFolderPath string     `gorm:"type:text" json:"root_folder_path"`
	IMDBID         string     `gorm:"column:imdb_id;type:varchar(32)" json:"imdb_id,omitempty"`
	TVDBID         *int       `gorm:"column:tvdb_id" json:"tvdb_id,omitempty"`
	TMDBID         *int       `gorm:"column:tmdb_id" json:"tmdb_id,omitempty"`
	SizeBytes      int64      `json:"size_bytes"`
	Genres         []string   `gorm:"serializer:json" json:"genres,omitempty"`
	Tags           []string   `gorm:"serializer:json" json:"tags,omitempty"`
	Rating         float64    `json:"rating"`
	IMDBRating     float64    `gorm:"column:imdb_rating" json:"imdb_rating"`
	ReleaseYear    int        `json:"release_year"`
	Plays          int        `json:"plays"`
	Quality        string     `gorm:"type:varchar(64)" json:"quality"`
	SeriesStatus   string     `gorm:"type:varchar(32)" json:"series_status,omitempty"`
	RemovedAt      *time.Time `gorm:"index" json:"removed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (InventoryItem) TableName() string {
	return "inventory_items"
}
