/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package services holds the external collaborator contracts that have no
// better home and the no-op implementations used when a service is not
// configured.
package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/identity"
	"github.com/friendsincode/janitor/internal/library"
)

// MediaServer is the playback server that surfaces the library to users.
type MediaServer interface {
	identity.ServerLookup
	// FlagLeavingSoon replaces the leaving-soon collection for mediaType.
	// holdOnly marks items that are overdue but held back.
	FlagLeavingSoon(ctx context.Context, mediaType library.MediaType, items []library.Item, holdOnly bool) error
	// Purge removes the server's entries for key. With no serverIDs the
	// server resolves the entries from key itself.
	Purge(ctx context.Context, mediaType library.MediaType, key library.LookupKey, serverIDs []string) error
}

// RequestTracker is the service users request media through.
type RequestTracker interface {
	CleanupRequests(ctx context.Context, item library.Item) error
}

// TagEditor adds and removes library-manager tags.
type TagEditor interface {
	AddTag(ctx context.Context, item library.Item, tag string) error
	RemoveTag(ctx context.Context, item library.Item, tag string) error
}

// Mover relocates an item's files.
type Mover interface {
	Move(ctx context.Context, item library.Item, destination string) error
}

// Noop satisfies every collaborator contract without side effects. Calls
// are logged at debug level so dry configurations stay observable.
type Noop struct {
	name   string
	logger zerolog.Logger
}

// NewNoop creates a no-op collaborator named after the service it stands in for.
func NewNoop(name string, logger zerolog.Logger) *Noop {
	return &Noop{name: name, logger: logger.With().Str("component", "noop").Str("service", name).Logger()}
}

// LookupServerIDs returns an empty index.
func (n *Noop) LookupServerIDs(_ context.Context, mediaType library.MediaType, items []library.Item, _ identity.Granularity) (map[library.LookupKey][]string, error) {
	n.logger.Debug().Str("media_type", string(mediaType)).Int("items", len(items)).Msg("lookup skipped")
	return map[library.LookupKey][]string{}, nil
}

// History returns no watch events.
func (n *Noop) History(_ context.Context, key library.LookupKey, _ []string) ([]identity.WatchEvent, error) {
	n.logger.Debug().Str("key", key.String()).Msg("history skipped")
	return nil, nil
}

func (n *Noop) FlagLeavingSoon(_ context.Context, mediaType library.MediaType, items []library.Item, holdOnly bool) error {
	n.logger.Debug().Str("media_type", string(mediaType)).Int("items", len(items)).Bool("hold_only", holdOnly).Msg("leaving soon skipped")
	return nil
}

func (n *Noop) Purge(_ context.Context, mediaType library.MediaType, key library.LookupKey, _ []string) error {
	n.logger.Debug().Str("media_type", string(mediaType)).Str("key", key.String()).Msg("purge skipped")
	return nil
}

func (n *Noop) CleanupRequests(_ context.Context, item library.Item) error {
	n.logger.Debug().Str("item", item.Label()).Msg("request cleanup skipped")
	return nil
}

func (n *Noop) AddTag(_ context.Context, item library.Item, tag string) error {
	n.logger.Debug().Str("item", item.Label()).Str("tag", tag).Msg("add tag skipped")
	return nil
}

func (n *Noop) RemoveTag(_ context.Context, item library.Item, tag string) error {
	n.logger.Debug().Str("item", item.Label()).Str("tag", tag).Msg("remove tag skipped")
	return nil
}

func (n *Noop) Move(_ context.Context, item library.Item, destination string) error {
	n.logger.Debug().Str("item", item.Label()).Str("destination", destination).Msg("move skipped")
	return nil
}

var (
	_ MediaServer           = (*Noop)(nil)
	_ RequestTracker        = (*Noop)(nil)
	_ TagEditor             = (*Noop)(nil)
	_ Mover                 = (*Noop)(nil)
	_ identity.WatchHistory = (*Noop)(nil)
)
