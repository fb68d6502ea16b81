/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/models"
)

// TagStore edits the tags of inventory rows. It backs the ADD_TAG and
// REMOVE_TAG rule actions when items come from the local inventory.
type TagStore struct {
	db *gorm.DB
}

// NewTagStore creates a tag store.
func NewTagStore(db *gorm.DB) *TagStore {
	return &TagStore{db: db}
}

// AddTag adds tag to item unless it already carries it (case-insensitive).
func (s *TagStore) AddTag(ctx context.Context, item Item, tag string) error {
	return s.edit(ctx, item, func(tags []string) ([]string, bool) {
		for _, t := range tags {
			if strings.EqualFold(t, tag) {
				return tags, false
			}
		}
		return append(tags, tag), true
	})
}

// RemoveTag drops every case-insensitive match of tag from item.
func (s *TagStore) RemoveTag(ctx context.Context, item Item, tag string) error {
	return s.edit(ctx, item, func(tags []string) ([]string, bool) {
		out := tags[:0:0]
		for _, t := range tags {
			if !strings.EqualFold(t, tag) {
				out = append(out, t)
			}
		}
		return out, len(out) != len(tags)
	})
}

func (s *TagStore) edit(ctx context.Context, item Item, fn func([]string) ([]string, bool)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.InventoryItem
		q := tx.Where("media_type = ? AND external_id = ? AND removed_at IS NULL", string(item.Type), item.ID)
		if season, ok := item.SeasonNumber(); ok {
			q = q.Where("season = ?", season)
		} else {
			q = q.Where("season IS NULL")
		}
		err := q.First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("tag %s: %w", item.Label(), faults.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("tag %s: %w", item.Label(), err)
		}

		tags, changed := fn(row.Tags)
		if !changed {
			return nil
		}
		row.Tags = tags
		if err := tx.Model(&row).Select("tags").Updates(&row).Error; err != nil {
			return fmt.Errorf("tag %s: %w", item.Label(), err)
		}
		return nil
	})
}
