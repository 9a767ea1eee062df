// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete cast CLI command tree.
//
// Every command that touches a content store embeds [storeParams] for
// the --store flag and resolves the store root through the
// configuration chain: the flag wins, then CAST_STORE, then the file
// named by CAST_CONFIG. There is no default store location — an
// unconfigured invocation fails with remediation text rather than
// silently picking a directory.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/cast/cmd/cast/cli"
	"github.com/bureau-foundation/cast/lib/config"
	"github.com/bureau-foundation/cast/lib/store"
	"github.com/bureau-foundation/cast/lib/version"
)

// Root builds and returns the complete cast CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "cast",
		Description: `cast: versioned, content-addressed datasets.

Datasets are described by manifests: JSON documents listing every
file by BLAKE3 content hash, with source provenance and transformation
history. Content lives once in a shared store; working trees are
symlink views into it.`,
		Subcommands: []*cli.Command{
			putCommand(),
			getCommand(),
			existsCommand(),
			validateCommand(),
			materializeCommand(),
			transformCommand(),
			extractCommand(),
			indexCommand(),
			registerCommand(),
			datasetsCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("cast %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Store a file and get its content hash",
				Command:     "cast put swissprot.tar.gz",
			},
			{
				Description: "Materialize a dataset as a working tree",
				Command:     "cast materialize manifest.json ./swissprot",
			},
			{
				Description: "Unpack an archive dataset",
				Command:     "cast extract ./downloads --target ./swissprot",
			},
			{
				Description: "Run a custom transformation with provenance",
				Command:     "cast transform ./swissprot --name annotate --program ./annotate.sh",
			},
			{
				Description: "List registered datasets matching a name",
				Command:     "cast datasets --name prot",
			},
		},
	}
}

// storeParams binds the store root override shared by every command
// that opens a content store. Embed it in a command's params struct;
// [storeParams.openStore] then runs the full resolution chain.
type storeParams struct {
	Store string `flag:"store" desc:"store root directory (overrides CAST_STORE and the config file)"`
}

// openStore resolves the store root and opens a handle bound to it.
// The store directory structure is created if absent.
func (p *storeParams) openStore(logger *slog.Logger) (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	root, err := config.ResolveStoreRoot(p.Store, cfg)
	if err != nil {
		return nil, err
	}
	return store.Open(store.Config{Root: root, Logger: logger})
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
