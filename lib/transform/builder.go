// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Environment variables passed to external builder programs.
const (
	// EnvTransformName carries the transformation name token.
	EnvTransformName = "CAST_TRANSFORM_NAME"

	// EnvTransformParams carries the serialized parameter object, or
	// the empty string when the transformation has no parameters.
	EnvTransformParams = "CAST_TRANSFORM_PARAMS"
)

// BuildContext is the working environment handed to a builder for one
// transformation run.
type BuildContext struct {
	// SourceRoot is the materialized source tree. Builders must treat
	// it as read-only: its entries link into the content store, whose
	// blobs are write-protected.
	SourceRoot string

	// OutputRoot is an empty directory the builder must populate. At
	// least one file must exist under it when the builder returns
	// successfully.
	OutputRoot string

	// Params is the transformation's parameter object. Nil when the
	// transformation takes no parameters.
	Params json.RawMessage

	// Name is the transformation name token.
	Name string
}

// Builder performs the work of one transformation step: read from
// SourceRoot, write results under OutputRoot. A nil return means the
// output directory holds the complete result.
type Builder interface {
	Run(ctx context.Context, build BuildContext) error
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(ctx context.Context, build BuildContext) error

// Run calls f.
func (f BuilderFunc) Run(ctx context.Context, build BuildContext) error {
	return f(ctx, build)
}

// CommandBuilder runs an external program as the builder. The program
// is invoked as
//
//	<program> <args...> <sourceRoot> <outputRoot>
//
// with the transformation name and serialized parameters in the
// [EnvTransformName] and [EnvTransformParams] environment variables.
// A non-zero exit surfaces as a [*BuilderError] carrying the exit
// status and the program's stderr unmodified.
type CommandBuilder struct {
	// Program is the executable to run, resolved on PATH unless it
	// contains a path separator.
	Program string

	// Args precede the source and output root arguments.
	Args []string
}

// Run executes the program against the build directories.
func (c *CommandBuilder) Run(ctx context.Context, build BuildContext) error {
	program, err := exec.LookPath(c.Program)
	if err != nil {
		return fmt.Errorf("resolving builder program: %w", err)
	}

	args := append(append([]string{}, c.Args...), build.SourceRoot, build.OutputRoot)
	command := exec.CommandContext(ctx, program, args...)
	command.Env = append(os.Environ(),
		EnvTransformName+"="+build.Name,
		EnvTransformParams+"="+string(build.Params),
	)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &BuilderError{
				Program:  c.Program,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return fmt.Errorf("running builder %s: %w", c.Program, err)
	}
	return nil
}

// BuilderError reports a builder program that ran and exited non-zero.
// The exit status and diagnostic output pass through unmodified so the
// caller sees exactly what the tool reported.
type BuilderError struct {
	Program  string
	ExitCode int
	Stderr   string
}

func (e *BuilderError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited %d: %s", e.Program, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s exited %d", e.Program, e.ExitCode)
}
