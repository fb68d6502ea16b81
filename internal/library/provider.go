/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/faults"
)

// Source is the library manager for one media type.
//
// RemoveItems must be idempotent: removing an item that is already gone
// succeeds and has no effect. removed counts the items that were present.
type Source interface {
	ListItems(ctx context.Context) ([]Item, error)
	RemoveItems(ctx context.Context, items []Item) (removed int, err error)
}

// Provider fans snapshot and removal calls out to the registered sources.
type Provider struct {
	mu      sync.RWMutex
	sources map[MediaType]Source
	logger  zerolog.Logger
}

// NewProvider creates an empty provider.
func NewProvider(logger zerolog.Logger) *Provider {
	return &Provider{
		sources: make(map[MediaType]Source),
		logger:  logger.With().Str("component", "library").Logger(),
	}
}

// Register attaches the source for a media type, replacing any previous one.
func (p *Provider) Register(mediaType MediaType, src Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[mediaType] = src
}

// Types returns the media types with a registered source, in processing order.
func (p *Provider) Types() []MediaType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]MediaType, 0, len(p.sources))
	for _, t := range MediaTypes {
		if _, ok := p.sources[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (p *Provider) source(mediaType MediaType) (Source, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	src, ok := p.sources[mediaType]
	if !ok {
		return nil, fmt.Errorf("no library source for %s", mediaType)
	}
	return src, nil
}

// Snapshot lists the current items of a media type. Every returned item has
// its Type set. A failed listing is reported as a collaborator failure.
func (p *Provider) Snapshot(ctx context.Context, mediaType MediaType) ([]Item, error) {
	src, err := p.source(mediaType)
	if err != nil {
		return nil, err
	}
	items, err := src.ListItems(ctx)
	if err != nil {
		return nil, faults.Unavailable("library-manager", "list "+string(mediaType), err)
	}
	for i := range items {
		items[i].Type = mediaType
	}
	p.logger.Debug().Str("media_type", string(mediaType)).Int("items", len(items)).Msg("library snapshot taken")
	return items, nil
}

// Remove deletes items from the library manager of their media type and
// returns how many were still present there.
func (p *Provider) Remove(ctx context.Context, mediaType MediaType, items []Item) (int, error) {
	src, err := p.source(mediaType)
	if err != nil {
		return 0, err
	}
	removed, err := src.RemoveItems(ctx, items)
	if err != nil {
		return removed, faults.Unavailable("library-manager", "remove "+string(mediaType), err)
	}
	return removed, nil
}
