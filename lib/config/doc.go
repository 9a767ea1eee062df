// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config resolves the cast store root.
//
// The store root comes from a strict priority chain:
//
//  1. an explicit per-invocation override (the --store flag),
//  2. the CAST_STORE environment variable,
//  3. a YAML config file named by the CAST_CONFIG environment variable.
//
// There are no fallbacks, no ~/.config discovery, and no implicit
// default path. A dataset build that silently lands in a
// machine-dependent cache directory is not reproducible, so when
// nothing supplies a store root, resolution fails with a
// [*ResolveError] naming every way to fix it.
//
// Key exports:
//
//   - [Load] -- read CAST_STORE / CAST_CONFIG from the environment
//   - [LoadFile] -- load a specific YAML config file
//   - [ResolveStoreRoot] -- apply the priority chain and validate
//
// This package depends on no other cast packages.
package config
