// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cast/cmd/cast/cli"
	"github.com/bureau-foundation/cast/lib/store"
)

// --- put ---

type putParams struct {
	storeParams
	cli.JSONOutput
}

// putResult is the JSON output row for put.
type putResult struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

func putCommand() *cli.Command {
	var params putParams

	return &cli.Command{
		Name:    "put",
		Summary: "Store files as content-addressed blobs",
		Usage:   "cast put <file> [file...] [flags]",
		Description: `Hash each file with BLAKE3 and copy it into the content store at its
hash-derived path. Storing the same content twice is a no-op: the
store is write-once and deduplicates by construction. The executable
bit of the source file carries over to the stored blob.

The content hash of each file is printed to stdout.`,
		Examples: []cli.Example{
			{
				Description: "Store a downloaded archive",
				Command:     "cast put swissprot.tar.gz",
			},
			{
				Description: "Store several files, one hash line each",
				Command:     "cast put data/*.fasta --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("put", &params)
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("file argument required\n\nUsage: cast put <file> [file...] [flags]")
			}

			st, err := params.openStore(logger)
			if err != nil {
				return err
			}

			results := make([]putResult, 0, len(args))
			for _, path := range args {
				hashString, size, err := st.PutFile(path)
				if err != nil {
					return err
				}
				results = append(results, putResult{Path: path, Hash: hashString, Size: size})
			}

			if done, err := params.EmitJSON(results); done {
				return err
			}

			if len(results) == 1 {
				fmt.Println(results[0].Hash)
				return nil
			}
			for _, result := range results {
				fmt.Printf("%s  %s\n", result.Hash, result.Path)
			}
			return nil
		},
	}
}

// --- get ---

type getParams struct {
	storeParams
	Verify bool `flag:"verify" desc:"re-hash the blob and fail if the content no longer matches"`
}

func getCommand() *cli.Command {
	var params getParams

	return &cli.Command{
		Name:    "get",
		Summary: "Print the store path of a blob",
		Usage:   "cast get <hash> [flags]",
		Description: `Resolve a content hash to its blob path inside the store. The hash
may carry an algorithm prefix (blake3:...) or be bare hex.

With --verify, the blob is re-hashed first and the command fails if
the stored content no longer matches its name. Verification needs
the full digest, not a truncated one.`,
		Examples: []cli.Example{
			{
				Description: "Resolve a hash to its blob path",
				Command:     "cast get blake3:a3f9b2c1... ",
			},
			{
				Description: "Check integrity while resolving",
				Command:     "cast get blake3:a3f9b2c1... --verify",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("get", &params)
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("hash argument required\n\nUsage: cast get <hash> [flags]")
			}

			st, err := params.openStore(logger)
			if err != nil {
				return err
			}

			if params.Verify {
				if err := st.Verify(args[0]); err != nil {
					return err
				}
			}

			path, err := st.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

// --- exists ---

type existsParams struct {
	storeParams
	cli.JSONOutput
}

// existsResult is the JSON output for exists.
type existsResult struct {
	Hash   string `json:"hash"`
	Exists bool   `json:"exists"`
	Path   string `json:"path,omitempty"`
}

func existsCommand() *cli.Command {
	var params existsParams

	return &cli.Command{
		Name:    "exists",
		Summary: "Check whether a blob is in the store",
		Usage:   "cast exists <hash> [flags]",
		Description: `Check if a blob is present. Exits 0 and prints the blob path when it
exists, exits 1 when it does not. This is a presence check only; use
"cast get --verify" to re-hash content.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("exists", &params)
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("hash argument required\n\nUsage: cast exists <hash> [flags]")
			}

			st, err := params.openStore(logger)
			if err != nil {
				return err
			}

			path, err := st.Get(args[0])
			found := err == nil
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}

			if done, err := params.EmitJSON(existsResult{Hash: args[0], Exists: found, Path: path}); done {
				return err
			}

			if found {
				fmt.Println(path)
				return nil
			}
			fmt.Fprintf(os.Stderr, "not found: %s\n", args[0])
			return &cli.ExitError{Code: 1}
		},
	}
}
