// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/cast/cmd/cast/cli"
	"github.com/bureau-foundation/cast/lib/builders"
	"github.com/bureau-foundation/cast/lib/manifest"
	"github.com/bureau-foundation/cast/lib/materialize"
	"github.com/bureau-foundation/cast/lib/transform"
)

// sourceFromDir builds a transformation source from a directory. A
// materialized tree contributes its manifest so provenance links back
// to it; any other directory is untracked input.
func sourceFromDir(dir string) (transform.Source, error) {
	m, err := manifest.Read(materialize.ManifestPath(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return transform.Source{Root: dir}, nil
		}
		return transform.Source{}, fmt.Errorf("reading dataset metadata in %s: %w", dir, err)
	}
	return transform.Source{Manifest: m, Root: dir}, nil
}

// readParamsFile loads a builder parameter file. The file may carry
// comments and trailing commas; it is normalized to plain JSON before
// being recorded in provenance.
func readParamsFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading params file: %w", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, jsonc.ToJSON(data)); err != nil {
		return nil, fmt.Errorf("params file %s: %w", path, err)
	}
	return json.RawMessage(compact.Bytes()), nil
}

// transformResult is the JSON output for the transformation verbs.
type transformResult struct {
	Hash    string `json:"hash"`
	Root    string `json:"root"`
	Entries int    `json:"entries"`
}

// printTransformResult reports a completed transformation: the result
// hash on stdout for capture, the tree location on stderr for humans.
func printTransformResult(output *cli.JSONOutput, result *transform.Result) error {
	if done, err := output.EmitJSON(transformResult{
		Hash:    result.Hash,
		Root:    result.Root,
		Entries: len(result.Manifest.Contents),
	}); done {
		return err
	}
	fmt.Fprintf(os.Stderr, "materialized at %s\n", result.Root)
	fmt.Println(result.Hash)
	return nil
}

type transformParams struct {
	storeParams
	cli.JSONOutput
	Name       string   `flag:"name" desc:"transformation name, recorded in provenance and used as the target directory component"`
	Program    string   `flag:"program" desc:"builder program to run as <program> [args...] <source> <output>"`
	Args       []string `flag:"arg" desc:"argument passed to the builder before the source and output roots (repeatable)"`
	ParamsFile string   `flag:"params-file" desc:"JSON file recorded verbatim as the transformation's parameters (comments allowed)"`
	Workspace  string   `flag:"workspace" desc:"scratch space and default parent of the target directory" default:"."`
	TargetDir  string   `flag:"target" desc:"where the derived dataset materializes (default <workspace>/<name>)"`
}

func transformCommand() *cli.Command {
	var params transformParams

	return &cli.Command{
		Name:    "transform",
		Summary: "Derive a new dataset by running a builder program",
		Usage:   "cast transform <source-dir> --name <name> --program <program> [flags]",
		Description: `Run an external builder against a source directory and capture
everything it writes as a new content-addressed dataset. The builder
is invoked as

    <program> [args...] <source-root> <output-root>

and must populate the output root. The derived dataset's manifest
records the transformation with its parameters, chained after the
source's own transformation history.

If the source directory is a materialized dataset, provenance links
the new dataset to it by hash. Any other directory is accepted as
untracked input.

The result hash is printed to stdout; the materialized tree location
goes to stderr.`,
		Examples: []cli.Example{
			{
				Description: "Filter a dataset with a script",
				Command:     "cast transform ./swissprot --name filter-human --program ./filter.sh",
			},
			{
				Description: "Pass builder arguments and parameters",
				Command:     "cast transform ./tree --name cluster --program mmseqs --arg easy-cluster --params-file cluster.json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("transform", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("source directory argument required\n\nUsage: cast transform <source-dir> --name <name> --program <program> [flags]")
			}
			if params.Name == "" {
				return fmt.Errorf("--name is required")
			}
			if params.Program == "" {
				return fmt.Errorf("--program is required")
			}

			src, err := sourceFromDir(args[0])
			if err != nil {
				return err
			}
			var builderParams json.RawMessage
			if params.ParamsFile != "" {
				builderParams, err = readParamsFile(params.ParamsFile)
				if err != nil {
					return err
				}
			}
			st, err := params.openStore(logger)
			if err != nil {
				return err
			}

			engine := transform.New(st, transform.Options{Logger: logger})
			result, err := engine.Run(ctx, transform.Request{
				Name:      params.Name,
				Source:    src,
				Builder:   &transform.CommandBuilder{Program: params.Program, Args: params.Args},
				Params:    builderParams,
				Workspace: params.Workspace,
				TargetDir: params.TargetDir,
			})
			if err != nil {
				return err
			}
			return printTransformResult(&params.JSONOutput, result)
		},
	}
}

type extractParams struct {
	storeParams
	cli.JSONOutput
	Archive   string `flag:"archive" desc:"archive path inside the source tree (default: sole recognized archive)"`
	Workspace string `flag:"workspace" desc:"scratch space and default parent of the target directory" default:"."`
	TargetDir string `flag:"target" desc:"where the extracted dataset materializes (default <workspace>/extract_archive)"`
}

func extractCommand() *cli.Command {
	var params extractParams

	return &cli.Command{
		Name:    "extract",
		Summary: "Extract an archive into a tracked dataset",
		Usage:   "cast extract <source-dir> [flags]",
		Description: `Unpack a tar archive from the source directory into a new
content-addressed dataset. Plain, gzip, and zstandard tar archives
are recognized by extension. Without --archive the source must
contain exactly one recognized archive.`,
		Examples: []cli.Example{
			{
				Description: "Extract the sole archive in a download directory",
				Command:     "cast extract ./downloads",
			},
			{
				Description: "Pick one of several archives",
				Command:     "cast extract ./downloads --archive release-2024_06.tar.gz",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("extract", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("source directory argument required\n\nUsage: cast extract <source-dir> [flags]")
			}

			src, err := sourceFromDir(args[0])
			if err != nil {
				return err
			}
			req, err := builders.ExtractArchive(src, builders.ExtractOptions{
				Archive:   params.Archive,
				Workspace: params.Workspace,
				TargetDir: params.TargetDir,
			})
			if err != nil {
				return err
			}
			st, err := params.openStore(logger)
			if err != nil {
				return err
			}

			engine := transform.New(st, transform.Options{Logger: logger})
			result, err := engine.Run(ctx, req)
			if err != nil {
				return err
			}
			return printTransformResult(&params.JSONOutput, result)
		},
	}
}

type indexParams struct {
	storeParams
	cli.JSONOutput
	Input     string `flag:"input" desc:"sequence file inside the source tree (default: sole sequence file by extension)"`
	Tool      string `flag:"tool" desc:"index tool to run" default:"makeblastdb"`
	DBType    string `flag:"dbtype" desc:"database type passed to the tool" default:"prot"`
	Output    string `flag:"output" desc:"database basename in the output tree (default: input name without extension)"`
	Workspace string `flag:"workspace" desc:"scratch space and default parent of the target directory" default:"."`
	TargetDir string `flag:"target" desc:"where the indexed dataset materializes (default <workspace>/sequence_index)"`
}

func indexCommand() *cli.Command {
	var params indexParams

	return &cli.Command{
		Name:    "index",
		Summary: "Build a sequence search database from a dataset",
		Usage:   "cast index <source-dir> [flags]",
		Description: `Run a sequence indexing tool (makeblastdb by default) against a
sequence file in the source directory and capture the database files
as a new dataset. Without --input the source must contain exactly one
file with a recognized sequence extension (.fasta, .fa, .fna, .faa).

The tool's version is probed and recorded in the transformation's
parameters so the derived database is reproducible.`,
		Examples: []cli.Example{
			{
				Description: "Build a BLAST protein database",
				Command:     "cast index ./swissprot",
			},
			{
				Description: "Nucleotide database with an explicit input",
				Command:     "cast index ./genomes --input grch38.fna --dbtype nucl",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("index", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("source directory argument required\n\nUsage: cast index <source-dir> [flags]")
			}

			src, err := sourceFromDir(args[0])
			if err != nil {
				return err
			}
			req, err := builders.SequenceIndex(src, builders.SequenceIndexOptions{
				Input:     params.Input,
				Tool:      params.Tool,
				DBType:    params.DBType,
				Output:    params.Output,
				Workspace: params.Workspace,
				TargetDir: params.TargetDir,
			})
			if err != nil {
				return err
			}
			st, err := params.openStore(logger)
			if err != nil {
				return err
			}

			engine := transform.New(st, transform.Options{Logger: logger})
			result, err := engine.Run(ctx, req)
			if err != nil {
				return err
			}
			return printTransformResult(&params.JSONOutput, result)
		},
	}
}
