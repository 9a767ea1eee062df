// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build provenance for the cast binary.
//
// Release builds inject values through -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/cast/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Builds made without ldflags (go install, go test) fall back to the
// VCS metadata the Go toolchain stamps into the binary, when present.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags at build time.
var (
	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"

	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty is "true" when the working tree had uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Info returns the one-line version string used by --version.
func Info() string {
	commit := GitCommit
	if commit == "unknown" {
		commit = vcsRevision()
	}
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Full returns the multi-line form with toolchain and platform details.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// vcsRevision reads the revision recorded by the Go toolchain, or
// "unknown" when the binary was built outside a version-controlled
// checkout.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			revision := setting.Value
			if len(revision) > 12 {
				revision = revision[:12]
			}
			return revision
		}
	}
	return "unknown"
}
