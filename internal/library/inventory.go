/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/janitor/internal/models"
)

// Inventory is a Source backed by the local inventory table, which mirrors
// what the library manager reports. Removal marks rows instead of deleting
// them so repeated removals are detectable.
type Inventory struct {
	db        *gorm.DB
	mediaType MediaType
	now       func() time.Time
}

// NewInventory returns the inventory source for one media type.
func NewInventory(db *gorm.DB, mediaType MediaType) *Inventory {
	return &Inventory{db: db, mediaType: mediaType, now: time.Now}
}

// ListItems returns every item of the media type that has not been removed.
func (inv *Inventory) ListItems(ctx context.Context) ([]Item, error) {
	var rows []models.InventoryItem
	err := inv.db.WithContext(ctx).
		Where("media_type = ? AND removed_at IS NULL", string(inv.mediaType)).
		Order("external_id, season").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, itemFromModel(row))
	}
	return items, nil
}

// RemoveItems marks items removed and returns how many were still present.
// Items that are already gone are skipped without error.
func (inv *Inventory) RemoveItems(ctx context.Context, items []Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	removedAt := inv.now().UTC()
	var removed int64
	for _, item := range items {
		q := inv.db.WithContext(ctx).Model(&models.InventoryItem{}).
			Where("media_type = ? AND external_id = ? AND removed_at IS NULL", string(inv.mediaType), item.ID)
		if season, ok := item.SeasonNumber(); ok {
			q = q.Where("season = ?", season)
		} else {
			q = q.Where("season IS NULL")
		}
		res := q.Update("removed_at", removedAt)
		if res.Error != nil {
			return int(removed), fmt.Errorf("remove %s: %w", item.Label(), res.Error)
		}
		removed += res.RowsAffected
	}
	return int(removed), nil
}

// Upsert inserts or refreshes items, clearing any earlier removal mark.
func (inv *Inventory) Upsert(ctx context.Context, items []Item) (int, error) {
	written := 0
	err := inv.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			item.Type = inv.mediaType
			row := itemToModel(item)

			var existing models.InventoryItem
			q := tx.Where("media_type = ? AND external_id = ?", row.MediaType, row.ExternalID)
			if row.Season != nil {
				q = q.Where("season = ?", *row.Season)
			} else {
				q = q.Where("season IS NULL")
			}
			err := q.First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("insert %s: %w", item.Label(), err)
				}
			case err != nil:
				return fmt.Errorf("lookup %s: %w", item.Label(), err)
			default:
				row.ID = existing.ID
				row.CreatedAt = existing.CreatedAt
				if err := tx.Save(&row).Error; err != nil {
					return fmt.Errorf("update %s: %w", item.Label(), err)
				}
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert inventory: %w", err)
	}
	return written, nil
}

func itemFromModel(row models.InventoryItem) Item {
	return Item{
		ID:             row.ExternalID,
		Type:           MediaType(row.MediaType),
		Title:          row.Title,
		ImportedAt:     row.ImportedAt,
		LastSeen:       row.LastSeen,
		OriginalPath:   row.OriginalPath,
		LibraryPath:    row.LibraryPath,
		ParentPath:     row.ParentPath,
		RootFolderPath: row.RootFolderPath,
		IMDBID:         row.IMDBID,
		TVDBID:         row.TVDBID,
		TMDBID:         row.TMDBID,
		Season:         row.Season,
		Tags:           row.Tags,
		SizeBytes:      row.SizeBytes,
		Genres:         row.Genres,
		Rating:         row.Rating,
		IMDBRating:     row.IMDBRating,
		ReleaseYear:    row.ReleaseYear,
		Plays:          row.Plays,
		Quality:        row.Quality,
		SeriesStatus:   row.SeriesStatus,
	}
}

func itemToModel(item Item) models.InventoryItem {
	return models.InventoryItem{
		ID:             uuid.NewString(),
		ExternalID:     item.ID,
		MediaType:      string(item.Type),
		Season:         item.Season,
		Title:          item.Title,
		ImportedAt:     item.ImportedAt,
		LastSeen:       item.LastSeen,
		OriginalPath:   item.OriginalPath,
		LibraryPath:    item.LibraryPath,
		ParentPath:     item.ParentPath,
		RootFolderPath: item.RootFolderPath,
		IMDBID:         item.IMDBID,
		TVDBID:         item.TVDBID,
		TMDBID:         item.TMDBID,
		SizeBytes:      item.SizeBytes,
		Genres:         item.Genres,
		Tags:           item.Tags,
		Rating:         item.Rating,
		IMDBRating:     item.IMDBRating,
		ReleaseYear:    item.ReleaseYear,
		Plays:          item.Plays,
		Quality:        item.Quality,
		SeriesStatus:   item.SeriesStatus,
	}
}
