// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cast/cmd/cast/cli"
	"github.com/bureau-foundation/cast/lib/hash"
	"github.com/bureau-foundation/cast/lib/manifest"
	"github.com/bureau-foundation/cast/lib/registry"
)

type registerParams struct {
	storeParams
	cli.JSONOutput
}

func registerCommand() *cli.Command {
	var params registerParams

	return &cli.Command{
		Name:    "register",
		Summary: "Record a dataset in the store's registry",
		Usage:   "cast register <manifest.json> [flags]",
		Description: `Validate a manifest and record the dataset it describes in the
registry database at the store root. Registering the same manifest
again is a no-op that returns the existing record; a different
manifest for an already-registered name and version is rejected.

The canonical manifest hash is printed to stdout.`,
		Examples: []cli.Example{
			{
				Description: "Register a release",
				Command:     "cast register manifest.json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("register", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("manifest argument required\n\nUsage: cast register <manifest.json> [flags]")
			}

			m, err := manifest.Read(args[0])
			if err != nil {
				return err
			}
			st, err := params.openStore(logger)
			if err != nil {
				return err
			}
			reg, err := registry.Open(registry.Config{
				Path:   registry.DefaultPath(st.Root()),
				Logger: logger,
			})
			if err != nil {
				return err
			}
			defer reg.Close()

			record, err := reg.Register(ctx, m)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(record); done {
				return err
			}
			fmt.Fprintf(os.Stderr, "registered %s %s\n", record.Name, record.Version)
			fmt.Println(record.ManifestHash)
			return nil
		},
	}
}

type datasetsParams struct {
	storeParams
	cli.JSONOutput
	Name string `flag:"name" desc:"only datasets whose name contains this substring"`
}

func datasetsCommand() *cli.Command {
	var params datasetsParams

	return &cli.Command{
		Name:    "datasets",
		Summary: "List registered datasets",
		Usage:   "cast datasets [flags]",
		Description: `List the datasets recorded in the store's registry, one row per
registered version. The table shows a truncated manifest hash; use
--json for the full hash.`,
		Examples: []cli.Example{
			{
				Description: "All registered datasets",
				Command:     "cast datasets",
			},
			{
				Description: "Releases of one dataset",
				Command:     "cast datasets --name swissprot",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("datasets", &params)
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			st, err := params.openStore(logger)
			if err != nil {
				return err
			}
			reg, err := registry.Open(registry.Config{
				Path:   registry.DefaultPath(st.Root()),
				Logger: logger,
			})
			if err != nil {
				return err
			}
			defer reg.Close()

			var records []registry.Record
			if params.Name != "" {
				records, err = reg.FindByName(ctx, params.Name)
			} else {
				records, err = reg.List(ctx)
			}
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(records); done {
				return err
			}

			if len(records) == 0 {
				fmt.Println("No datasets registered.")
				return nil
			}
			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "NAME\tVERSION\tSIZE\tENTRIES\tREGISTERED\tHASH")
			for _, record := range records {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%s\n",
					record.Name,
					record.Version,
					formatSize(record.TotalSize),
					record.EntryCount,
					record.RegisteredAt.Format("2006-01-02 15:04:05"),
					shortHash(record.ManifestHash))
			}
			writer.Flush()
			return nil
		},
	}
}

// shortHash truncates a hash to a table-friendly prefix.
func shortHash(h string) string {
	digest := hash.StripPrefix(h)
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
