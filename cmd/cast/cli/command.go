// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the cast command tree: either a group that
// dispatches to Subcommands, or a leaf with a Run function.
type Command struct {
	// Name is the word the user types (e.g., "materialize").
	Name string

	// Summary is the one-line description in the parent's command list.
	Summary string

	// Description is the longer help text shown by this command's own
	// help output. Falls back to Summary when empty.
	Description string

	// Usage overrides the synthesized usage line (e.g.,
	// "cast get <hash> [flags]").
	Usage string

	// Examples render at the end of help output.
	Examples []Example

	// Flags builds the command's flag set, invoked per dispatch.
	// Nil means the command takes no flags.
	Flags func() *pflag.FlagSet

	// Subcommands to dispatch by the first positional argument.
	Subcommands []*Command

	// Run is the leaf handler, called with the positional arguments
	// left after flag parsing. A command with both Subcommands and Run
	// falls through to Run when no subcommand matches.
	Run func(ctx context.Context, args []string, logger *slog.Logger) error

	// parent is set during dispatch so help can show the full path.
	parent *Command
}

// Example is one worked command line in help output.
type Example struct {
	// Description says what the invocation does.
	Description string
	// Command is the literal command line.
	Command string
}

// Execute dispatches args against the command tree: routes the first
// positional argument to a subcommand, parses flags, and invokes Run.
func (c *Command) Execute(ctx context.Context, args []string, logger *slog.Logger) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(os.Stderr)
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub := c.findSubcommand(args[0])
		if sub == nil {
			return c.unknownCommand(args[0])
		}
		sub.parent = c
		return sub.Execute(ctx, args[1:], logger)
	}

	// A pure group reached without a subcommand: either no args at all,
	// or a flag where a subcommand should be (the help flags were
	// handled above).
	if len(c.Subcommands) > 0 && c.Run == nil {
		c.PrintHelp(os.Stderr)
		if len(args) == 0 {
			return fmt.Errorf("subcommand required")
		}
		return fmt.Errorf("subcommand required (got flag %q)", args[0])
	}

	if c.Flags != nil {
		flagSet := c.Flags()

		// Suppress pflag's own error print and usage dump; parse
		// failures are reformatted below with suggestions.
		flagSet.SetOutput(io.Discard)

		if err := flagSet.Parse(args); err != nil {
			return c.flagError(err, args)
		}
		args = flagSet.Args()
	}

	if c.Run != nil {
		return c.Run(ctx, args, logger)
	}

	c.PrintHelp(os.Stderr)
	return fmt.Errorf("no action defined for %q", c.fullName())
}

// findSubcommand returns the subcommand named name, or nil.
func (c *Command) findSubcommand(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

// unknownCommand builds the error for an unmatched subcommand name,
// with a typo suggestion when one is close enough.
func (c *Command) unknownCommand(name string) error {
	message := fmt.Sprintf("unknown command %q", name)
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		message = fmt.Sprintf("unknown command %q (did you mean %q?)", name, suggestion)
	}
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, c.fullName())
}

// flagError builds the error for a flag parse failure, attaching a
// suggestion when an unknown flag is a near miss of a defined one.
func (c *Command) flagError(parseErr error, args []string) error {
	message := parseErr.Error()
	if strings.Contains(message, "unknown flag") {
		// Suggest against a fresh flag set; the failed parse may have
		// consumed state in the original.
		if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
			message = fmt.Sprintf("%s (did you mean %s?)", message, suggestion)
		}
	}
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, c.fullName())
}

// PrintHelp writes the command's help text to w: description, usage,
// subcommand table, flag defaults, and worked examples.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	if c.Description != "" {
		fmt.Fprintf(w, "%s\n\n", c.Description)
	} else if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	c.printUsage(w, name)
	c.printSubcommands(w)
	c.printFlagDefaults(w)
	c.printExamples(w)

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

func (c *Command) printUsage(w io.Writer, name string) {
	switch {
	case c.Usage != "":
		fmt.Fprintf(w, "Usage:\n  %s\n", c.Usage)
	case len(c.Subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", name)
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", name)
	}
}

func (c *Command) printSubcommands(w io.Writer) {
	if len(c.Subcommands) == 0 {
		return
	}
	fmt.Fprintf(w, "\nCommands:\n")
	table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	for _, sub := range c.Subcommands {
		fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
	}
	table.Flush()
}

func (c *Command) printFlagDefaults(w io.Writer) {
	if c.Flags == nil {
		return
	}
	flagSet := c.Flags()
	var rendered strings.Builder
	flagSet.SetOutput(&rendered)
	flagSet.PrintDefaults()
	if rendered.Len() > 0 {
		fmt.Fprintf(w, "\nFlags:\n%s", rendered.String())
	}
}

func (c *Command) printExamples(w io.Writer) {
	if len(c.Examples) == 0 {
		return
	}
	fmt.Fprintf(w, "\nExamples:\n")
	for _, example := range c.Examples {
		if example.Description != "" {
			fmt.Fprintf(w, "  # %s\n", example.Description)
		}
		fmt.Fprintf(w, "  %s\n", example.Command)
		if example.Description != "" {
			fmt.Fprintln(w)
		}
	}
}

// fullName returns the space-joined command path from the root (e.g.,
// "cast datasets").
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

// isHelpFlag matches the three ways users ask for help.
func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
