/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package identity maps library items onto media-server identities and
// attaches their watch history.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/library"
)

// Granularity selects whether TV is tracked per season or per whole show.
type Granularity string

const (
	BySeason Granularity = "season"
	ByShow   Granularity = "show"
)

// ParseGranularity accepts "season" or "show"; empty means season.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "", BySeason:
		return BySeason, nil
	case ByShow:
		return ByShow, nil
	}
	return "", faults.Configf("tv_granularity", "unknown granularity %q", s)
}

// MinWatched is the shortest playback that counts as watching.
const MinWatched = 60 * time.Second

// WatchEvent is one playback reported by the watch-history service.
type WatchEvent struct {
	At      time.Time
	Watched time.Duration
}

// ServerLookup resolves items to media-server ids grouped by lookup key.
type ServerLookup interface {
	LookupServerIDs(ctx context.Context, mediaType library.MediaType, items []library.Item, granularity Granularity) (map[library.LookupKey][]string, error)
}

// WatchHistory returns the playbacks recorded for a lookup key.
type WatchHistory interface {
	History(ctx context.Context, key library.LookupKey, serverIDs []string) ([]WatchEvent, error)
}

// KeyFor derives the lookup key of item. Movies use their id; TV uses the
// show id plus, for season granularity, the season number.
func KeyFor(item *library.Item, granularity Granularity) (library.LookupKey, error) {
	if item.ID <= 0 {
		return library.LookupKey{}, fmt.Errorf("item %q has no id: %w", item.Title, faults.ErrIdentityAmbiguous)
	}
	if item.Type != library.TV || granularity == ByShow {
		return library.ShowKey(item.ID), nil
	}
	season, ok := item.SeasonNumber()
	if !ok {
		return library.LookupKey{}, fmt.Errorf("tv item %d has no season: %w", item.ID, faults.ErrIdentityAmbiguous)
	}
	return library.SeasonKey(item.ID, season), nil
}

// Index maps lookup keys to media-server ids.
type Index map[library.LookupKey][]string

// Lookup never fails: a missing key yields an empty list.
func (ix Index) Lookup(key library.LookupKey) []string {
	if ids, ok := ix[key]; ok {
		return ids
	}
	return []string{}
}

// Correlator joins the library snapshot with media-server state.
type Correlator struct {
	servers     ServerLookup
	history     WatchHistory
	granularity Granularity
	workers     int
	logger      zerolog.Logger
}

// NewCorrelator creates a correlator. history may be nil when no watch
// history service is configured.
func NewCorrelator(servers ServerLookup, history WatchHistory, granularity Granularity, workers int, logger zerolog.Logger) *Correlator {
	if workers <= 0 {
		workers = 4
	}
	return &Correlator{
		servers:     servers,
		history:     history,
		granularity: granularity,
		workers:     workers,
		logger:      logger.With().Str("component", "identity").Logger(),
	}
}

// Granularity returns the configured TV granularity.
func (c *Correlator) Granularity() Granularity { return c.granularity }

// Correlate asks the media server for the ids of items.
func (c *Correlator) Correlate(ctx context.Context, mediaType library.MediaType, items []library.Item) (Index, error) {
	ids, err := c.servers.LookupServerIDs(ctx, mediaType, items, c.granularity)
	if err != nil {
		return nil, faults.Unavailable("media-server", "lookup ids", err)
	}
	return Index(ids), nil
}

// Enrich attaches media-server ids and the most recent qualifying watch to
// every item in place. The returned slice is aligned with items; a non-nil
// entry means the item could not be resolved this tick.
func (c *Correlator) Enrich(ctx context.Context, mediaType library.MediaType, items []library.Item) []error {
	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs
	}

	index, err := c.Correlate(ctx, mediaType, items)
	if err != nil {
		for i := range errs {
			errs[i] = err
		}
		return errs
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range items {
		item := &items[i]
		key, err := KeyFor(item, c.granularity)
		if err != nil {
			c.logger.Warn().Err(err).Str("item", item.Label()).Msg("identity ambiguous, using no watch history")
			continue
		}
		item.MediaServerIDs = index.Lookup(key)
		if c.history == nil {
			continue
		}
		g.Go(func() error {
			events, err := c.history.History(gctx, key, item.MediaServerIDs)
			if err != nil {
				errs[i] = faults.Unavailable("watch-history", "history "+key.String(), err)
				return nil
			}
			if latest, ok := MostRecentWatch(events); ok {
				if item.LastSeen == nil || latest.After(*item.LastSeen) {
					item.LastSeen = &latest
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// MostRecentWatch returns the latest event longer than MinWatched.
func MostRecentWatch(events []WatchEvent) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, ev := range events {
		if ev.Watched <= MinWatched {
			continue
		}
		if !found || ev.At.After(latest) {
			latest = ev.At
			found = true
		}
	}
	return latest, found
}
