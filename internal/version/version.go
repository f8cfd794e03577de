/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version holds build identification.
package version

import "runtime"

// Version is the current version of Grimnir Player.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/grimnir_player/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the VCS revision, set at build time like Version.
var Commit = "unknown"

// String renders the version for CLI output.
func String() string {
	return "grimnirplayer " + Version + " (" + Commit + ", " + runtime.Version() + ")"
}
