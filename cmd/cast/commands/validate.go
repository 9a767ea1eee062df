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
	"github.com/bureau-foundation/cast/lib/manifest"
)

type validateParams struct {
	cli.JSONOutput
}

// validateResult is the JSON output for validate.
type validateResult struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	SchemaVersion   string `json:"schema_version"`
	Entries         int    `json:"entries"`
	TotalSize       int64  `json:"total_size"`
	Transformations int    `json:"transformations"`
	ManifestHash    string `json:"manifest_hash"`
}

func validateCommand() *cli.Command {
	var params validateParams

	return &cli.Command{
		Name:    "validate",
		Summary: "Validate a manifest file",
		Usage:   "cast validate <manifest.json> [flags]",
		Description: `Parse and validate a manifest. Every violation is reported, not just
the first. On success, print a summary of the dataset the manifest
describes, including the canonical manifest hash used by provenance
records and the registry.

Validation needs no store: it checks the document, not blob presence.`,
		Examples: []cli.Example{
			{
				Description: "Validate and summarize",
				Command:     "cast validate manifest.json",
			},
			{
				Description: "Extract the canonical hash for scripting",
				Command:     "cast validate manifest.json --json | jq -r .manifest_hash",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("validate", &params)
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("manifest argument required\n\nUsage: cast validate <manifest.json> [flags]")
			}

			m, err := manifest.Read(args[0])
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return fmt.Errorf("%s is not a valid manifest:\n%w", args[0], err)
			}
			manifestHash, err := m.CanonicalHash()
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(validateResult{
				Name:            m.Dataset.Name,
				Version:         m.Dataset.Version,
				SchemaVersion:   m.SchemaVersion,
				Entries:         len(m.Contents),
				TotalSize:       m.TotalSize(),
				Transformations: len(m.Transformations),
				ManifestHash:    manifestHash,
			}); done {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "Dataset:\t%s %s\n", m.Dataset.Name, m.Dataset.Version)
			if m.Dataset.Description != "" {
				fmt.Fprintf(writer, "Description:\t%s\n", m.Dataset.Description)
			}
			fmt.Fprintf(writer, "Schema:\t%s\n", m.SchemaVersion)
			if m.Source != nil && m.Source.URL != "" {
				fmt.Fprintf(writer, "Source:\t%s\n", m.Source.URL)
			}
			fmt.Fprintf(writer, "Entries:\t%d\n", len(m.Contents))
			fmt.Fprintf(writer, "Total Size:\t%s (%d bytes)\n", formatSize(m.TotalSize()), m.TotalSize())
			fmt.Fprintf(writer, "Transformations:\t%d\n", len(m.Transformations))
			fmt.Fprintf(writer, "Manifest Hash:\t%s\n", manifestHash)
			writer.Flush()
			return nil
		},
	}
}
