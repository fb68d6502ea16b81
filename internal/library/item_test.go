/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"testing"
	"time"
)

func TestEffectiveAgePrefersLastSeen(t *testing.T) {
	imported := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seen := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lastSeen *time.Time
		wantAge  time.Duration
	}{
		{name: "never watched", lastSeen: nil, wantAge: now.Sub(imported)},
		{name: "watched", lastSeen: &seen, wantAge: 10 * 24 * time.Hour},
		{name: "zero last seen", lastSeen: &time.Time{}, wantAge: now.Sub(imported)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := Item{ImportedAt: imported, LastSeen: tt.lastSeen}
			if got := item.Age(now); got != tt.wantAge {
				t.Errorf("Age() = %v, want %v", got, tt.wantAge)
			}
		})
	}
}

func TestAgeNeverNegative(t *testing.T) {
	now := time.Now()
	item := Item{ImportedAt: now.Add(time.Hour)}
	if got := item.Age(now); got != 0 {
		t.Errorf("Age() = %v, want 0", got)
	}
}

func TestHasTagIgnoresCase(t *testing.T) {
	item := Item{Tags: []string{"Janitorr_Keep", "4k"}}
	if !item.HasTag("janitorr_keep") {
		t.Error("expected tag match ignoring case")
	}
	if item.HasTag("other") {
		t.Error("unexpected tag match")
	}
}

func TestLookupKeyStructuralEquality(t *testing.T) {
	index := map[LookupKey][]string{
		SeasonKey(5, 2): {"a"},
		ShowKey(5):      {"b"},
	}
	if got := index[LookupKey{ID: 5, Season: 2, HasSeason: true}]; len(got) != 1 || got[0] != "a" {
		t.Errorf("season lookup = %v", got)
	}
	if got := index[SeasonKey(5, 2).Show()]; len(got) != 1 || got[0] != "b" {
		t.Errorf("show lookup = %v", got)
	}
	if ShowKey(5) == SeasonKey(5, 0) {
		t.Error("show key must differ from season 0 key")
	}
}

func TestParseMediaType(t *testing.T) {
	tests := map[string]MediaType{"movies": Movies, "Radarr": Movies, "tv": TV, "series": TV}
	for in, want := range tests {
		got, err := ParseMediaType(in)
		if err != nil || got != want {
			t.Errorf("ParseMediaType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMediaType("music"); err == nil {
		t.Error("expected error for unknown media type")
	}
}

func TestFileFormatAndLabel(t *testing.T) {
	season := 3
	item := Item{ID: 9, Type: TV, Title: "Show", Season: &season, LibraryPath: "/tv/Show/S03/ep.MKV"}
	if got := item.FileFormat(); got != "mkv" {
		t.Errorf("FileFormat() = %q", got)
	}
	if got := item.Label(); got != "Show S03" {
		t.Errorf("Label() = %q", got)
	}
}
