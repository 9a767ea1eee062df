// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cast/cmd/cast/cli"
	"github.com/bureau-foundation/cast/lib/manifest"
	"github.com/bureau-foundation/cast/lib/materialize"
)

type materializeParams struct {
	storeParams
	cli.JSONOutput
}

func materializeCommand() *cli.Command {
	var params materializeParams

	return &cli.Command{
		Name:    "materialize",
		Summary: "Realize a manifest as a working tree",
		Usage:   "cast materialize <manifest.json> <target-dir> [flags]",
		Description: `Create a working tree at target-dir with every manifest entry
symlinked to its blob in the content store. The target directory must
not already exist; the tree appears atomically or not at all.

The tree carries a metadata directory with a copy of the manifest and
a binding file that names the tree's root under an identifier derived
from the dataset name. Source the binding file from a shell to address
the tree by name:

    . <target-dir>/.cast/env`,
		Examples: []cli.Example{
			{
				Description: "Materialize a dataset release",
				Command:     "cast materialize manifest.json ./swissprot-2024_06",
			},
			{
				Description: "Against an explicit store",
				Command:     "cast materialize --store /data/store manifest.json ./tree",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("materialize", &params)
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) < 2 {
				return fmt.Errorf("manifest and target-dir arguments required\n\nUsage: cast materialize <manifest.json> <target-dir> [flags]")
			}

			m, err := manifest.Read(args[0])
			if err != nil {
				return err
			}
			st, err := params.openStore(logger)
			if err != nil {
				return err
			}

			mz := materialize.New(st, materialize.Options{Logger: logger})
			result, err := mz.Materialize(m, args[1])
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}

			fmt.Printf("Materialized %s %s\n", m.Dataset.Name, m.Dataset.Version)
			fmt.Printf("  -> %s\n", result.Root)
			fmt.Printf("  %s=%s\n", result.Binding, result.Root)
			return nil
		},
	}
}
