/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/janitor/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Create API credentials",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <subject>",
	Short: "Issue a signed access token",
	Long:  "Issue an HS256 token signed with JANITOR_JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenIssue,
}

var tokenAPIKeyCmd = &cobra.Command{
	Use:   "api-key <name>",
	Short: "Generate an API key",
	Long:  "Generate an API key and print the JANITOR_API_KEYS entry holding its hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenAPIKey,
}

var (
	tokenRole string
	tokenTTL  time.Duration
)

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenRole, "role", auth.RoleViewer, "Role granted by the token (admin or viewer)")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")
	tokenAPIKeyCmd.Flags().StringVar(&tokenRole, "role", auth.RoleViewer, "Role granted by the key (admin or viewer)")
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenAPIKeyCmd)
	rootCmd.AddCommand(tokenCmd)
}

func checkRole(role string) error {
	if role != auth.RoleAdmin && role != auth.RoleViewer {
		return fmt.Errorf("unknown role %q", role)
	}
	return nil
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	if err := checkRole(tokenRole); err != nil {
		return err
	}
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("JANITOR_JWT_SECRET is not set")
	}
	token, err := auth.Issue([]byte(cfg.JWTSecret), args[0], []string{tokenRole}, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runTokenAPIKey(cmd *cobra.Command, args []string) error {
	if err := checkRole(tokenRole); err != nil {
		return err
	}
	plaintext, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key:   %s\n", plaintext)
	fmt.Fprintf(out, "entry: %s:%s:%s\n", args[0], tokenRole, hash)
	return nil
}
