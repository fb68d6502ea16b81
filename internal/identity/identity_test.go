/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/library"
)

func intPtr(v int) *int { return &v }

type fakeServer struct {
	ids map[library.LookupKey][]string
	err error
}

func (f *fakeServer) LookupServerIDs(_ context.Context, _ library.MediaType, _ []library.Item, _ Granularity) (map[library.LookupKey][]string, error) {
	return f.ids, f.err
}

type fakeHistory struct {
	events map[library.LookupKey][]WatchEvent
	fail   map[library.LookupKey]bool
}

func (f *fakeHistory) History(_ context.Context, key library.LookupKey, _ []string) ([]WatchEvent, error) {
	if f.fail[key] {
		return nil, errors.New("timeout")
	}
	return f.events[key], nil
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		name    string
		item    library.Item
		g       Granularity
		want    library.LookupKey
		wantErr bool
	}{
		{name: "movie", item: library.Item{ID: 4, Type: library.Movies}, g: BySeason, want: library.ShowKey(4)},
		{name: "season", item: library.Item{ID: 4, Type: library.TV, Season: intPtr(2)}, g: BySeason, want: library.SeasonKey(4, 2)},
		{name: "whole show", item: library.Item{ID: 4, Type: library.TV, Season: intPtr(2)}, g: ByShow, want: library.ShowKey(4)},
		{name: "tv without season", item: library.Item{ID: 4, Type: library.TV}, g: BySeason, wantErr: true},
		{name: "no id", item: library.Item{Type: library.Movies}, g: BySeason, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeyFor(&tt.item, tt.g)
			if tt.wantErr {
				if !errors.Is(err, faults.ErrIdentityAmbiguous) {
					t.Fatalf("expected ErrIdentityAmbiguous, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("KeyFor() = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestIndexLookupMissingKeyIsEmpty(t *testing.T) {
	ix := Index{library.ShowKey(1): {"a"}}
	got := ix.Lookup(library.ShowKey(2))
	if got == nil || len(got) != 0 {
		t.Errorf("Lookup(missing) = %#v, want empty slice", got)
	}
}

func TestMostRecentWatchIgnoresShortPlays(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	events := []WatchEvent{
		{At: base, Watched: 10 * time.Minute},
		{At: base.Add(48 * time.Hour), Watched: 30 * time.Second},
		{At: base.Add(24 * time.Hour), Watched: 61 * time.Second},
		{At: base.Add(72 * time.Hour), Watched: 60 * time.Second},
	}
	got, ok := MostRecentWatch(events)
	if !ok || !got.Equal(base.Add(24*time.Hour)) {
		t.Errorf("MostRecentWatch() = %v, %v", got, ok)
	}
	if _, ok := MostRecentWatch(events[1:2]); ok {
		t.Error("short plays alone must not count")
	}
}

func TestEnrich(t *testing.T) {
	seen := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	server := &fakeServer{ids: map[library.LookupKey][]string{
		library.SeasonKey(1, 1): {"jf-1"},
		library.SeasonKey(1, 2): {"jf-2"},
	}}
	history := &fakeHistory{
		events: map[library.LookupKey][]WatchEvent{
			library.SeasonKey(1, 1): {{At: seen, Watched: time.Hour}},
		},
		fail: map[library.LookupKey]bool{library.SeasonKey(1, 2): true},
	}
	items := []library.Item{
		{ID: 1, Type: library.TV, Season: intPtr(1), LastSeen: &older},
		{ID: 1, Type: library.TV, Season: intPtr(2)},
		{ID: 1, Type: library.TV},
		{ID: 1, Type: library.TV, Season: intPtr(3)},
	}

	c := NewCorrelator(server, history, BySeason, 2, zerolog.Nop())
	errs := c.Enrich(context.Background(), library.TV, items)

	if errs[0] != nil || items[0].LastSeen == nil || !items[0].LastSeen.Equal(seen) {
		t.Errorf("season 1: err=%v lastSeen=%v", errs[0], items[0].LastSeen)
	}
	if len(items[0].MediaServerIDs) != 1 || items[0].MediaServerIDs[0] != "jf-1" {
		t.Errorf("season 1 ids = %v", items[0].MediaServerIDs)
	}
	if !errors.Is(errs[1], faults.ErrCollaboratorUnavailable) {
		t.Errorf("season 2: expected collaborator error, got %v", errs[1])
	}
	if errs[2] != nil || items[2].LastSeen != nil {
		t.Errorf("ambiguous item should get no history and no error: err=%v", errs[2])
	}
	if errs[3] != nil || len(items[3].MediaServerIDs) != 0 {
		t.Errorf("unknown season: err=%v ids=%v", errs[3], items[3].MediaServerIDs)
	}
}

func TestEnrichLookupFailureMarksEveryItem(t *testing.T) {
	c := NewCorrelator(&fakeServer{err: errors.New("down")}, nil, BySeason, 1, zerolog.Nop())
	items := []library.Item{{ID: 1, Type: library.Movies}, {ID: 2, Type: library.Movies}}
	errs := c.Enrich(context.Background(), library.Movies, items)
	for i, err := range errs {
		if !errors.Is(err, faults.ErrCollaboratorUnavailable) {
			t.Errorf("item %d: got %v", i, err)
		}
	}
}

func TestEnrichWholeShowSharesHistory(t *testing.T) {
	seen := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{events: map[library.LookupKey][]WatchEvent{
		library.ShowKey(7): {{At: seen, Watched: time.Hour}},
	}}
	items := []library.Item{
		{ID: 7, Type: library.TV, Season: intPtr(1)},
		{ID: 7, Type: library.TV, Season: intPtr(2)},
	}
	c := NewCorrelator(&fakeServer{}, history, ByShow, 1, zerolog.Nop())
	c.Enrich(context.Background(), library.TV, items)
	for i := range items {
		if items[i].LastSeen == nil || !items[i].LastSeen.Equal(seen) {
			t.Errorf("season %d did not inherit show history", i+1)
		}
	}
}
