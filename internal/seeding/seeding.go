/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package seeding answers whether an item's download is still being seeded.
package seeding

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/library"
)

// Signal reports whether an item is still seeding.
type Signal interface {
	IsSeeding(ctx context.Context, item *library.Item) (bool, error)
}

// Never is the signal used when seeding detection is disabled.
type Never struct{}

// IsSeeding always returns false.
func (Never) IsSeeding(context.Context, *library.Item) (bool, error) { return false, nil }

// FileSystem treats an item as seeding while its original download path
// still exists. Download clients keep the original file in place until the
// torrent is removed, so an existing path means seeding continues.
type FileSystem struct {
	// Root, when set, is prefixed to original paths that are relative.
	Root string
	stat func(string) (fs.FileInfo, error)
}

// NewFileSystem creates a filesystem based signal.
func NewFileSystem(root string) *FileSystem {
	return &FileSystem{Root: root, stat: os.Stat}
}

// IsSeeding stats the original path of the item.
func (f *FileSystem) IsSeeding(ctx context.Context, item *library.Item) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path := strings.TrimSpace(item.OriginalPath)
	if path == "" {
		return false, nil
	}
	if f.Root != "" && !strings.HasPrefix(path, "/") {
		path = strings.TrimRight(f.Root, "/") + "/" + path
	}
	// The original path equal to the library path means the file was moved,
	// not hardlinked or copied, so nothing is left behind to seed.
	if item.LibraryPath != "" && path == item.LibraryPath {
		return false, nil
	}
	stat := f.stat
	if stat == nil {
		stat = os.Stat
	}
	_, err := stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, faults.Unavailable("filesystem", "stat", err)
	}
}

// Checker wraps a Signal so that any error is treated as seeding.
type Checker struct {
	signal Signal
	logger zerolog.Logger
}

// NewChecker creates a fail-safe checker. A nil signal disables detection.
func NewChecker(signal Signal, logger zerolog.Logger) *Checker {
	if signal == nil {
		signal = Never{}
	}
	return &Checker{signal: signal, logger: logger.With().Str("component", "seeding").Logger()}
}

// Seeding returns whether the item must be protected as seeding.
func (c *Checker) Seeding(ctx context.Context, item *library.Item) bool {
	seeding, err := c.signal.IsSeeding(ctx, item)
	if err != nil {
		c.logger.Warn().Err(err).Str("item", item.Label()).Msg("seeding check failed, assuming seeding")
		return true
	}
	return seeding
}
