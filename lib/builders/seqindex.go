// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package builders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/cast/lib/transform"
)

// SequenceExtensions are the file name suffixes recognized as
// sequence files for indexing.
var SequenceExtensions = []string{".fasta", ".fa", ".fna", ".faa"}

// SequenceIndexOptions configures the sequence indexing preset.
type SequenceIndexOptions struct {
	// Input names the sequence file within the source tree, relative
	// to its root. Empty means auto-detect by extension.
	Input string

	// Tool is the indexing executable, resolved on PATH unless it
	// contains a path separator. Defaults to "makeblastdb".
	Tool string

	// DBType is the database type argument. Defaults to "prot".
	DBType string

	// Output is the base name for the generated index files. Defaults
	// to the input file name with its extension removed.
	Output string

	// Workspace and TargetDir pass through to the request.
	Workspace string
	TargetDir string
}

// sequenceIndexParams is the recorded parameter object for an
// indexing run. Tool identity and version make the provenance record
// auditable: the manifest alone says what produced the index.
type sequenceIndexParams struct {
	Tool        string `json:"tool"`
	ToolVersion string `json:"tool_version"`
	Input       string `json:"input"`
	DBType      string `json:"dbtype"`
	Output      string `json:"output"`
}

// SequenceIndex returns a transformation request that converts a
// sequence file into an indexed search database with an external
// tool. The tool is resolved and version-probed up front so a missing
// binary fails before any transformation state exists.
func SequenceIndex(src transform.Source, opts SequenceIndexOptions) (transform.Request, error) {
	input := opts.Input
	if input == "" {
		found, err := FindByExtension(src.Root, SequenceExtensions)
		if err != nil {
			return transform.Request{}, err
		}
		input = found
	}

	tool := opts.Tool
	if tool == "" {
		tool = "makeblastdb"
	}
	dbType := opts.DBType
	if dbType == "" {
		dbType = "prot"
	}
	output := opts.Output
	if output == "" {
		base := filepath.Base(filepath.FromSlash(input))
		output = strings.TrimSuffix(base, filepath.Ext(base))
	}

	toolPath, err := exec.LookPath(tool)
	if err != nil {
		return transform.Request{}, fmt.Errorf("resolving indexing tool: %w", err)
	}
	version, err := probeVersion(toolPath)
	if err != nil {
		return transform.Request{}, err
	}

	params, err := json.Marshal(sequenceIndexParams{
		Tool:        tool,
		ToolVersion: version,
		Input:       input,
		DBType:      dbType,
		Output:      output,
	})
	if err != nil {
		return transform.Request{}, fmt.Errorf("encoding index parameters: %w", err)
	}

	builder := transform.BuilderFunc(func(ctx context.Context, build transform.BuildContext) error {
		return runIndexTool(ctx, toolPath, build, input, dbType, output)
	})

	return transform.Request{
		Name:      "sequence-index",
		Source:    src,
		Builder:   builder,
		Params:    params,
		Workspace: opts.Workspace,
		TargetDir: opts.TargetDir,
	}, nil
}

// probeVersion runs the tool with -version and returns the first line
// of its output. Tools in this family print the version banner on
// stdout, but stderr is accepted too.
func probeVersion(toolPath string) (string, error) {
	output, err := exec.Command(toolPath, "-version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("probing %s version: %w", toolPath, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(line), nil
}

// runIndexTool invokes the indexing tool against the source file. A
// non-zero exit passes through as a builder error with the tool's own
// diagnostics.
func runIndexTool(ctx context.Context, toolPath string, build transform.BuildContext, input, dbType, output string) error {
	command := exec.CommandContext(ctx, toolPath,
		"-in", filepath.Join(build.SourceRoot, filepath.FromSlash(input)),
		"-dbtype", dbType,
		"-out", filepath.Join(build.OutputRoot, output),
	)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &transform.BuilderError{
				Program:  filepath.Base(toolPath),
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return fmt.Errorf("running %s: %w", toolPath, err)
	}
	return nil
}
