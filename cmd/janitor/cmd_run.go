/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/janitor/internal/retention"
	"github.com/friendsincode/janitor/internal/scheduler"
	"github.com/friendsincode/janitor/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single tick and exit",
	Long:  "Evaluate the library once, apply rule actions and clean up expired items, then print the tick summary",
	RunE:  runTick,
}

var (
	runDryRun  bool
	runVerbose bool
)

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Simulate cleanup without deleting anything (default: JANITOR_DRY_RUN)")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Print every decision instead of the counts")
	rootCmd.AddCommand(runCmd)
}

func runTick(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	dryRun := cfg.DryRun
	if cmd.Flags().Changed("dry-run") {
		dryRun = runDryRun
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := srv.Scheduler().RunOnce(ctx, scheduler.TriggerManual, dryRun)
	if err != nil {
		return err
	}

	out := map[string]any{
		"id":          run.ID,
		"dry_run":     run.DryRun,
		"started_at":  run.StartedAt,
		"finished_at": run.FinishedAt,
		"counts":      retention.Counts(run.Decisions),
		"cleanup":     run.Cleanup,
		"errors":      run.Errors,
	}
	if runVerbose {
		out["decisions"] = run.Decisions
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if len(run.Errors) > 0 {
		return fmt.Errorf("tick finished with %d error(s)", len(run.Errors))
	}
	return nil
}
