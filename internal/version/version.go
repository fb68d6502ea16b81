/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version reports build information.
package version

import "runtime"

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/janitor/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// Commit is the git revision, set via ldflags.
var Commit = "unknown"

// Info is the build information exposed by the API.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// Current returns the running build information.
func Current() Info {
	return Info{Version: Version, Commit: Commit, GoVersion: runtime.Version()}
}
