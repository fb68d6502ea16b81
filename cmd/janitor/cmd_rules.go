/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/janitor/internal/db"
	"github.com/friendsincode/janitor/internal/rules"
	"github.com/friendsincode/janitor/internal/server"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage retention rules",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a rules file",
	Long:  "Parse and validate a YAML or JSON rules file without touching the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesValidate,
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a rules file into the rule store",
	Long:  "Store every rule of a YAML or JSON rules file, replacing rules with the same id",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesImport,
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesImportCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	parsed, err := rules.LoadFile(args[0])
	if err != nil {
		return err
	}
	for _, r := range rules.Ordered(parsed) {
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%4d  %-8s  %s\n", r.Priority, state, r.Name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d rule(s) valid\n", len(parsed))
	return nil
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	store := rules.NewStore(database, cfg.MaxRules, logger)
	n, err := server.ImportRules(context.Background(), store, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d rule(s)\n", n)
	return nil
}
