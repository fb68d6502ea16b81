/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/janitor/internal/db"
	"github.com/friendsincode/janitor/internal/library"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Manage the library inventory",
}

var inventoryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import library items from a YAML file",
	Long: `Insert or refresh library items. The file maps a media type to its items:

  movies:
    - id: 1
      title: Example
      imported_at: 2024-01-01T00:00:00Z
      size_bytes: 1073741824
  tv:
    - id: 7
      season: 1
      imported_at: 2024-02-01T00:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runInventoryImport,
}

func init() {
	inventoryCmd.AddCommand(inventoryImportCmd)
	rootCmd.AddCommand(inventoryCmd)
}

// parseInventory decodes an inventory file into items per media type.
func parseInventory(data []byte) (map[library.MediaType][]library.Item, error) {
	var doc map[string][]library.Item
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	out := make(map[library.MediaType][]library.Item, len(doc))
	for key, items := range doc {
		mt, err := library.ParseMediaType(key)
		if err != nil {
			return nil, err
		}
		for i := range items {
			if items[i].ImportedAt.IsZero() {
				return nil, fmt.Errorf("%s item %d: imported_at is required", mt, items[i].ID)
			}
			if mt == library.TV && items[i].Season == nil {
				return nil, fmt.Errorf("tv item %d: season is required", items[i].ID)
			}
			items[i].Type = mt
		}
		out[mt] = append(out[mt], items...)
	}
	return out, nil
}

func runInventoryImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read inventory file: %w", err)
	}
	byType, err := parseInventory(data)
	if err != nil {
		return err
	}

	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	types := make([]library.MediaType, 0, len(byType))
	for mt := range byType {
		types = append(types, mt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, mt := range types {
		n, err := library.NewInventory(database, mt).Upsert(context.Background(), byType[mt])
		if err != nil {
			return fmt.Errorf("import %s: %w", mt, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d item(s)\n", mt, n)
	}
	return nil
}
