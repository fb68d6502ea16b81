/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"testing"

	"github.com/friendsincode/janitor/internal/config"
	"github.com/friendsincode/janitor/internal/models"
)

func TestConnectAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:"}
	database, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []any{&models.InventoryItem{}, &models.RetentionRule{}, &models.TickRun{}, &models.DecisionRecord{}} {
		if !database.Migrator().HasTable(table) {
			t.Errorf("table for %T missing", table)
		}
	}
	// Migrating twice is a no-op.
	if err := Migrate(database); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	UpdateConnectionMetrics(database)
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle", DBDSN: "x"}); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}
