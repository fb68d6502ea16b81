/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/janitor/internal/faults"
)

func TestTagStoreAddRemove(t *testing.T) {
	db := openInventoryTestDB(t)
	ctx := context.Background()
	inv := NewInventory(db, Movies)
	if _, err := inv.Upsert(ctx, []Item{{ID: 7, Title: "Alien", ImportedAt: time.Now(), Tags: []string{"sci-fi"}}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	store := NewTagStore(db)
	item := Item{ID: 7, Type: Movies}

	if err := store.AddTag(ctx, item, "janitorr_keep"); err != nil {
		t.Fatalf("AddTag() error = %v", err)
	}
	if err := store.AddTag(ctx, item, "JANITORR_KEEP"); err != nil {
		t.Fatalf("AddTag() duplicate error = %v", err)
	}
	items, _ := inv.ListItems(ctx)
	if len(items) != 1 || len(items[0].Tags) != 2 || !items[0].HasTag("janitorr_keep") {
		t.Fatalf("tags after add = %v", items[0].Tags)
	}

	if err := store.RemoveTag(ctx, item, "Sci-Fi"); err != nil {
		t.Fatalf("RemoveTag() error = %v", err)
	}
	items, _ = inv.ListItems(ctx)
	if len(items[0].Tags) != 1 || items[0].Tags[0] != "janitorr_keep" {
		t.Fatalf("tags after remove = %v", items[0].Tags)
	}
}

func TestTagStoreMissingItem(t *testing.T) {
	store := NewTagStore(openInventoryTestDB(t))
	err := store.AddTag(context.Background(), Item{ID: 99, Type: Movies}, "x")
	if !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("AddTag() error = %v, want ErrNotFound", err)
	}
}
