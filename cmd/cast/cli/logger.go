// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger builds the *slog.Logger handed to command Run
// functions. Log output goes to stderr so stdout stays reserved for
// command results: text format when stderr is a terminal, JSON when it
// is piped or redirected (CI, scripts, cron). verbose drops the level
// from Info to Debug.
//
// Commands scope it further with With:
//
//	logger := cli.NewCommandLogger(verbose).With("command", "transform")
func NewCommandLogger(verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}
