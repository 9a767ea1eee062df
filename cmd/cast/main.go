// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cast/cmd/cast/cli"
	"github.com/bureau-foundation/cast/cmd/cast/commands"
	"github.com/bureau-foundation/cast/lib/version"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like exists) return an
		// ExitError with the desired exit code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := commands.Root()

	// Global flags come before the verb; interspersed parsing is off so
	// everything after the verb belongs to the subcommand.
	global := pflag.NewFlagSet("cast", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)
	verbose := global.BoolP("verbose", "v", false, "enable debug logging")
	showVersion := global.Bool("version", false, "print version and exit")
	if err := global.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			root.PrintHelp(os.Stderr)
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("cast %s\n", version.Info())
		return nil
	}

	logger := cli.NewCommandLogger(*verbose)
	return root.Execute(context.Background(), global.Args(), logger)
}
