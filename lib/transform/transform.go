// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transform executes builder steps against materialized
// datasets and emits derived manifests with extended provenance.
//
// A run moves through fixed stages: resolve the source, execute the
// builder against a read-only source tree and an empty output
// directory, capture every output file into the content store, then
// assemble and materialize the new manifest. Manifest construction is
// the final step, so a failed run never leaves a partial manifest
// behind; at worst the store gains unreferenced blobs, which content
// addressing makes inert. The result carries the derived manifest and
// its materialized tree and is itself a valid source for the next
// transformation, so pipelines compose.
package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/cast/lib/manifest"
	"github.com/bureau-foundation/cast/lib/materialize"
	"github.com/bureau-foundation/cast/lib/store"
)

// Stage identifies the phase of a transformation run. Every engine
// failure names the stage it occurred in.
type Stage string

const (
	StageInit           Stage = "init"
	StageResolveSource  Stage = "resolve-source"
	StageExecuteBuilder Stage = "execute-builder"
	StageCaptureOutputs Stage = "capture-outputs"
	StageBuildManifest  Stage = "build-manifest"
)

// Error wraps a transformation failure with the stage that produced
// it.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrEmptyOutput reports a builder that exited successfully without
// writing a single file to its output directory. An empty dataset is
// never a valid result, and retrying the same builder cannot fix it.
var ErrEmptyOutput = errors.New("builder produced no output files")

// derivedVersion tags a derived dataset whose source manifest carried
// no version to inherit.
const derivedVersion = "transformed"

// Source is the input to a transformation: a materialized tree plus,
// when the tree is a tracked dataset, its manifest. An untracked
// source has only Root; its provenance records from = "unknown".
type Source struct {
	// Manifest describes the source tree. Nil for untracked input.
	Manifest *manifest.Manifest

	// Root is the directory holding the source content.
	Root string

	// Hash is the representative hash recorded as the new step's
	// "from". Empty means derive it from Manifest via
	// [RepresentativeHash].
	Hash string
}

// SourceFromResult turns a completed transformation into the source
// for the next one, carrying the result hash forward so the chain
// links hop to hop.
func SourceFromResult(result *Result) Source {
	return Source{Manifest: result.Manifest, Root: result.Root, Hash: result.Hash}
}

// Request describes one transformation run.
type Request struct {
	// Name is the transformation type token recorded in provenance.
	// It becomes the default target directory component, so it must
	// not contain path separators.
	Name string

	// Source is the input dataset.
	Source Source

	// Builder performs the work.
	Builder Builder

	// Params is the builder's parameter object, recorded verbatim in
	// the transformation record. Optional.
	Params json.RawMessage

	// Workspace holds builder output scratch space and is the default
	// parent of TargetDir.
	Workspace string

	// TargetDir is where the derived dataset materializes. Defaults
	// to <Workspace>/<Name>.
	TargetDir string
}

func (r Request) validate() error {
	var problems []error
	invalid := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if r.Name == "" {
		invalid("transformation name is required")
	} else if strings.ContainsAny(r.Name, `/\`) {
		invalid("transformation name %q must not contain path separators", r.Name)
	}
	if r.Builder == nil {
		invalid("builder is required")
	}
	if r.Source.Root == "" {
		invalid("source root is required")
	}
	if r.Workspace == "" {
		invalid("workspace directory is required")
	}
	return errors.Join(problems...)
}

// Result is a completed transformation: the derived manifest, its
// representative hash, and the root of its materialized tree.
type Result struct {
	Manifest *manifest.Manifest
	Hash     string
	Root     string
}

// Options configures an [Engine].
type Options struct {
	// Logger receives progress events. Defaults to a discarding
	// logger.
	Logger *slog.Logger
}

// Engine runs transformations against one content store.
type Engine struct {
	store        *store.Store
	materializer *materialize.Materializer
	logger       *slog.Logger
}

// New returns an engine that captures outputs into st and
// materializes results from it.
func New(st *store.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		store:        st,
		materializer: materialize.New(st, materialize.Options{Logger: logger}),
		logger:       logger,
	}
}

// Run executes one transformation to completion and materializes the
// derived dataset. The run is synchronous; cancellation via ctx is
// the builder's to honor.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, &Error{Stage: StageInit, Err: err}
	}

	chain, from, err := resolveSource(req.Source)
	if err != nil {
		return nil, &Error{Stage: StageResolveSource, Err: err}
	}

	e.logger.Info("running transformation",
		"name", req.Name,
		"from", from,
		"source_root", req.Source.Root)

	outputRoot, err := e.executeBuilder(ctx, req)
	if err != nil {
		return nil, &Error{Stage: StageExecuteBuilder, Err: err}
	}
	defer os.RemoveAll(outputRoot)

	entries, err := e.captureOutputs(outputRoot)
	if err != nil {
		return nil, &Error{Stage: StageCaptureOutputs, Err: err}
	}
	if len(entries) == 0 {
		return nil, &Error{Stage: StageCaptureOutputs, Err: ErrEmptyOutput}
	}

	record := manifest.TransformationRecord{
		Type:   req.Name,
		From:   from,
		Params: req.Params,
	}
	derived := buildManifest(req, entries, manifest.ExtendChain(chain, record))

	resultHash, err := RepresentativeHash(derived)
	if err != nil {
		return nil, &Error{Stage: StageBuildManifest, Err: err}
	}

	target := req.TargetDir
	if target == "" {
		target = filepath.Join(req.Workspace, req.Name)
	}
	materialized, err := e.materializer.Materialize(derived, target)
	if err != nil {
		return nil, &Error{Stage: StageBuildManifest, Err: err}
	}

	e.logger.Info("transformation complete",
		"name", req.Name,
		"hash", resultHash,
		"entries", len(entries),
		"root", materialized.Root)

	return &Result{Manifest: derived, Hash: resultHash, Root: materialized.Root}, nil
}

// resolveSource checks that the source tree exists and derives the
// provenance inputs for the new record: the chain to extend and the
// hash the step transforms from.
func resolveSource(src Source) ([]manifest.TransformationRecord, string, error) {
	info, err := os.Stat(src.Root)
	if err != nil {
		return nil, "", fmt.Errorf("source root unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, "", fmt.Errorf("source root %s is not a directory", src.Root)
	}

	if src.Manifest == nil {
		return nil, manifest.UnknownProvenance, nil
	}
	if err := src.Manifest.Validate(); err != nil {
		return nil, "", err
	}

	from := src.Hash
	if from == "" {
		from, err = RepresentativeHash(src.Manifest)
		if err != nil {
			return nil, "", err
		}
	}
	return src.Manifest.Chain(), from, nil
}

// executeBuilder creates a fresh output directory under the workspace
// and runs the builder against it. On builder failure the scratch
// directory is removed before the error propagates.
func (e *Engine) executeBuilder(ctx context.Context, req Request) (string, error) {
	if err := os.MkdirAll(req.Workspace, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	outputRoot, err := os.MkdirTemp(req.Workspace, "."+req.Name+".out-*")
	if err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	build := BuildContext{
		SourceRoot: req.Source.Root,
		OutputRoot: outputRoot,
		Params:     req.Params,
		Name:       req.Name,
	}
	if err := req.Builder.Run(ctx, build); err != nil {
		os.RemoveAll(outputRoot)
		return "", err
	}
	return outputRoot, nil
}

// buildManifest assembles the derived manifest. Dataset identity
// carries over from the source when present; transforming untracked
// input names the dataset after the transformation itself.
func buildManifest(req Request, entries []manifest.ContentEntry, chain []manifest.TransformationRecord) *manifest.Manifest {
	name := req.Name
	version := derivedVersion
	if src := req.Source.Manifest; src != nil && src.Dataset != nil {
		if src.Dataset.Name != "" {
			name = src.Dataset.Name
		}
		if src.Dataset.Version != "" {
			version = src.Dataset.Version
		}
	}

	return &manifest.Manifest{
		SchemaVersion: manifest.SchemaVersion,
		Dataset:       &manifest.Dataset{Name: name, Version: version},
		Source: &manifest.Source{
			URL:         "transform://" + req.Name,
			ArchiveHash: manifest.TransformedArchiveHash,
		},
		Contents:        entries,
		Transformations: chain,
	}
}

// RepresentativeHash returns the hash that identifies a dataset in
// provenance records: the source archive hash when the manifest
// carries a real one, otherwise the canonical hash of the manifest
// itself. Derived manifests always carry the synthetic archive
// sentinel, so chains identify intermediate datasets by manifest
// hash.
func RepresentativeHash(m *manifest.Manifest) (string, error) {
	if m.Source != nil && m.Source.ArchiveHash != "" && m.Source.ArchiveHash != manifest.TransformedArchiveHash {
		return m.Source.ArchiveHash, nil
	}
	return m.CanonicalHash()
}
