// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command-line framework for cast.
//
// [Command] models one node of the command tree: groups dispatch on
// the first positional argument, leaves parse flags and call Run.
// cmd/cast/commands assembles the tree, and [Command.Execute] routes a
// raw argument vector through it, handling help output, flag parsing,
// and context/logger threading along the way.
//
// Flags are declared as tagged params structs bound by
// [FlagsFromParams]; embedding [JSONOutput] adds --json plus the
// EmitJSON method for machine-readable output.
//
// Mistyped commands and flags get a "did you mean" suggestion when a
// defined name is within a small edit distance of the input
// (suggest.go).
package cli
