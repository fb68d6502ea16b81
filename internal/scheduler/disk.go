/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// DiskProbe reports the free space of the library filesystem.
type DiskProbe interface {
	FreePercent(ctx context.Context) (float64, error)
}

// FilesystemProbe reads disk usage of Path through gopsutil.
type FilesystemProbe struct {
	Path string
}

// FreePercent returns the free share of the filesystem holding Path.
func (p FilesystemProbe) FreePercent(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, p.Path)
	if err != nil {
		return 0, fmt.Errorf("disk usage of %s: %w", p.Path, err)
	}
	if usage.Total == 0 {
		return 0, fmt.Errorf("disk usage of %s: empty filesystem", p.Path)
	}
	return 100 - usage.UsedPercent, nil
}
