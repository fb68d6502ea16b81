/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library models the assets held by the library managers and
// provides per-tick snapshots of them.
package library

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MediaType distinguishes the two library managers.
type MediaType string

const (
	Movies MediaType = "movies"
	TV     MediaType = "tv"
)

// MediaTypes lists every supported media type in processing order.
var MediaTypes = []MediaType{Movies, TV}

// ParseMediaType accepts the canonical names plus a few common aliases.
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movies", "movie", "radarr":
		return Movies, nil
	case "tv", "shows", "series", "sonarr":
		return TV, nil
	}
	return "", fmt.Errorf("unknown media type %q", s)
}

// Item is one managed asset: a movie, or one season of a TV show.
type Item struct {
	ID             int        `json:"id" yaml:"id"`
	Type           MediaType  `json:"type" yaml:"type"`
	Title          string     `json:"title,omitempty" yaml:"title"`
	ImportedAt     time.Time  `json:"imported_at" yaml:"imported_at"`
	LastSeen       *time.Time `json:"last_seen,omitempty" yaml:"last_seen"`
	OriginalPath   string     `json:"original_path,omitempty" yaml:"original_path"`
	LibraryPath    string     `json:"library_path,omitempty" yaml:"library_path"`
	ParentPath     string     `json:"parent_path,omitempty" yaml:"parent_path"`
	RootFolderPath string     `json:"root_folder_path,omitempty" yaml:"root_folder_path"`
	IMDBID         string     `json:"imdb_id,omitempty" yaml:"imdb_id"`
	TVDBID         *int       `json:"tvdb_id,omitempty" yaml:"tvdb_id"`
	TMDBID         *int       `json:"tmdb_id,omitempty" yaml:"tmdb_id"`
	Season         *int       `json:"season,omitempty" yaml:"season"`
	MediaServerIDs []string   `json:"media_server_ids,omitempty" yaml:"-"`
	Seeding        bool       `json:"seeding" yaml:"-"`
	Tags           []string   `json:"tags,omitempty" yaml:"tags"`

	SizeBytes    int64    `json:"size_bytes" yaml:"size_bytes"`
	Genres       []string `json:"genres,omitempty" yaml:"genres"`
	Rating       float64  `json:"rating,omitempty" yaml:"rating"`
	IMDBRating   float64  `json:"imdb_rating,omitempty" yaml:"imdb_rating"`
	ReleaseYear  int      `json:"release_year,omitempty" yaml:"release_year"`
	Plays        int      `json:"plays" yaml:"plays"`
	Quality      string   `json:"quality,omitempty" yaml:"quality"`
	SeriesStatus string   `json:"series_status,omitempty" yaml:"series_status"`
}

// EffectiveAge is the timestamp age is measured from: the last time the
// item was watched, or its import date when it was never watched.
func (i *Item) EffectiveAge() time.Time {
	if i.LastSeen != nil && !i.LastSeen.IsZero() {
		return *i.LastSeen
	}
	return i.ImportedAt
}

// Age returns how long ago the effective age timestamp lies relative to now.
func (i *Item) Age(now time.Time) time.Duration {
	age := now.Sub(i.EffectiveAge())
	if age < 0 {
		return 0
	}
	return age
}

// HasTag reports whether the item carries tag, ignoring case.
func (i *Item) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// SeasonNumber returns the season and whether one is set.
func (i *Item) SeasonNumber() (int, bool) {
	if i.Season == nil {
		return 0, false
	}
	return *i.Season, true
}

// FileFormat returns the lower-case extension of the library file, without the dot.
func (i *Item) FileFormat() string {
	path := i.LibraryPath
	if path == "" {
		path = i.OriginalPath
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Label is a short human readable identification used in logs and reports.
func (i *Item) Label() string {
	name := i.Title
	if name == "" {
		name = fmt.Sprintf("%s #%d", i.Type, i.ID)
	}
	if season, ok := i.SeasonNumber(); ok {
		return fmt.Sprintf("%s S%02d", name, season)
	}
	return name
}
