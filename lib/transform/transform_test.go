// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/cast/lib/hash"
	"github.com/bureau-foundation/cast/lib/manifest"
	"github.com/bureau-foundation/cast/lib/store"
	"github.com/bureau-foundation/cast/lib/testutil"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Root: filepath.Join(t.TempDir(), "cast")})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return New(st, Options{}), st
}

// untrackedSource writes the given files into a fresh directory and
// returns it as a manifest-less source.
func untrackedSource(t *testing.T, files map[string]string) Source {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, files)
	return Source{Root: root}
}

// copyInput is a builder that copies input.txt from the source to
// copied.txt in the output.
func copyInput(ctx context.Context, build BuildContext) error {
	data, err := os.ReadFile(filepath.Join(build.SourceRoot, "input.txt"))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(build.OutputRoot, "copied.txt"), data, 0o644)
}

func TestRunUntrackedSource(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.Run(context.Background(), Request{
		Name:      "copy",
		Source:    untrackedSource(t, map[string]string{"input.txt": "payload"}),
		Builder:   BuilderFunc(copyInput),
		Workspace: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	m := result.Manifest
	if m.Dataset.Name != "copy" || m.Dataset.Version != "transformed" {
		t.Errorf("dataset = %s/%s, want copy/transformed", m.Dataset.Name, m.Dataset.Version)
	}
	if m.Source.URL != "transform://copy" {
		t.Errorf("source URL = %q, want transform://copy", m.Source.URL)
	}
	if m.Source.ArchiveHash != manifest.TransformedArchiveHash {
		t.Errorf("archive hash = %q, want the transformation sentinel", m.Source.ArchiveHash)
	}

	chain := m.Chain()
	if len(chain) != 1 {
		t.Fatalf("chain has %d records, want 1", len(chain))
	}
	if chain[0].Type != "copy" {
		t.Errorf("record type = %q, want %q", chain[0].Type, "copy")
	}
	if chain[0].From != manifest.UnknownProvenance {
		t.Errorf("record from = %q, want %q", chain[0].From, manifest.UnknownProvenance)
	}

	// The result hash is the canonical manifest hash: derived
	// manifests never have a real archive hash.
	wantHash, err := m.CanonicalHash()
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}
	if result.Hash != wantHash {
		t.Errorf("result hash = %s, want %s", result.Hash, wantHash)
	}

	// The output materialized: the copied file reads back through
	// its link with the original content.
	data, err := os.ReadFile(filepath.Join(result.Root, "copied.txt"))
	if err != nil {
		t.Fatalf("reading materialized output: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("output content = %q, want %q", data, "payload")
	}
}

func TestRunTargetDefaultsToWorkspaceName(t *testing.T) {
	engine, _ := newTestEngine(t)
	workspace := t.TempDir()

	result, err := engine.Run(context.Background(), Request{
		Name:      "copy",
		Source:    untrackedSource(t, map[string]string{"input.txt": "x"}),
		Builder:   BuilderFunc(copyInput),
		Workspace: workspace,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if want := filepath.Join(workspace, "copy"); result.Root != want {
		t.Errorf("result root = %q, want %q", result.Root, want)
	}
}

func TestRunInheritsDatasetIdentity(t *testing.T) {
	engine, _ := newTestEngine(t)

	src := untrackedSource(t, map[string]string{"input.txt": "x"})
	src.Manifest = &manifest.Manifest{
		SchemaVersion: manifest.SchemaVersion,
		Dataset:       &manifest.Dataset{Name: "swissprot", Version: "2026.03"},
		Source:        &manifest.Source{URL: "https://example.org/sp.tar.gz"},
		Contents:      []manifest.ContentEntry{},
	}

	result, err := engine.Run(context.Background(), Request{
		Name:      "copy",
		Source:    src,
		Builder:   BuilderFunc(copyInput),
		Workspace: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := result.Manifest.Dataset
	if got.Name != "swissprot" || got.Version != "2026.03" {
		t.Errorf("dataset = %s/%s, want swissprot/2026.03", got.Name, got.Version)
	}
}

func TestRunExtendsExistingChain(t *testing.T) {
	engine, _ := newTestEngine(t)

	firstHop := manifest.TransformationRecord{Type: "download", From: manifest.UnknownProvenance}
	explicit := hash.Format(hash.Sum([]byte("the source dataset")))

	src := untrackedSource(t, map[string]string{"input.txt": "x"})
	src.Hash = explicit
	src.Manifest = &manifest.Manifest{
		SchemaVersion:   manifest.SchemaVersion,
		Dataset:         &manifest.Dataset{Name: "t", Version: "1.0"},
		Source:          &manifest.Source{},
		Contents:        []manifest.ContentEntry{},
		Transformations: []manifest.TransformationRecord{firstHop},
	}

	result, err := engine.Run(context.Background(), Request{
		Name:      "index",
		Source:    src,
		Builder:   BuilderFunc(copyInput),
		Workspace: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	chain := result.Manifest.Chain()
	if len(chain) != 2 {
		t.Fatalf("chain has %d records, want 2", len(chain))
	}
	if chain[0].Type != "download" {
		t.Errorf("chain[0].Type = %q, want %q", chain[0].Type, "download")
	}
	if chain[1].Type != "index" {
		t.Errorf("chain[1].Type = %q, want %q", chain[1].Type, "index")
	}
	if chain[1].From != explicit {
		t.Errorf("chain[1].From = %q, want the hash passed in (%q)", chain[1].From, explicit)
	}

	// The source manifest's own chain is untouched.
	if got := len(src.Manifest.Chain()); got != 1 {
		t.Errorf("source chain grew to %d records", got)
	}
}

func TestRunComposes(t *testing.T) {
	engine, _ := newTestEngine(t)
	workspace := t.TempDir()

	first, err := engine.Run(context.Background(), Request{
		Name:      "copy",
		Source:    untrackedSource(t, map[string]string{"input.txt": "seed"}),
		Builder:   BuilderFunc(copyInput),
		Workspace: workspace,
	})
	if err != nil {
		t.Fatalf("first hop failed: %v", err)
	}

	second, err := engine.Run(context.Background(), Request{
		Name:   "annotate",
		Source: SourceFromResult(first),
		Builder: BuilderFunc(func(ctx context.Context, build BuildContext) error {
			data, err := os.ReadFile(filepath.Join(build.SourceRoot, "copied.txt"))
			if err != nil {
				return err
			}
			annotated := append(data, []byte(" annotated")...)
			return os.WriteFile(filepath.Join(build.OutputRoot, "annotated.txt"), annotated, 0o644)
		}),
		Workspace: workspace,
	})
	if err != nil {
		t.Fatalf("second hop failed: %v", err)
	}

	chain := second.Manifest.Chain()
	if len(chain) != 2 {
		t.Fatalf("chain has %d records, want 2", len(chain))
	}
	if chain[0].Type != "copy" || chain[1].Type != "annotate" {
		t.Errorf("chain types = %s, %s; want copy, annotate", chain[0].Type, chain[1].Type)
	}
	if chain[1].From != first.Hash {
		t.Errorf("chain[1].From = %q, want the first hop's hash %q", chain[1].From, first.Hash)
	}

	data, err := os.ReadFile(filepath.Join(second.Root, "annotated.txt"))
	if err != nil {
		t.Fatalf("reading second hop output: %v", err)
	}
	if string(data) != "seed annotated" {
		t.Errorf("composed output = %q, want %q", data, "seed annotated")
	}
}

func TestRunEmptyOutputIsFatal(t *testing.T) {
	engine, _ := newTestEngine(t)
	workspace := t.TempDir()

	_, err := engine.Run(context.Background(), Request{
		Name:   "noop",
		Source: untrackedSource(t, map[string]string{"input.txt": "x"}),
		Builder: BuilderFunc(func(ctx context.Context, build BuildContext) error {
			return nil
		}),
		Workspace: workspace,
	})
	if !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("error = %v, want ErrEmptyOutput", err)
	}

	var stageErr *Error
	if !errors.As(err, &stageErr) || stageErr.Stage != StageCaptureOutputs {
		t.Errorf("error does not name the capture stage: %v", err)
	}

	assertEmptyDir(t, workspace)
}

func TestRunBuilderFailurePassesThrough(t *testing.T) {
	engine, _ := newTestEngine(t)
	workspace := t.TempDir()

	builderErr := errors.New("refusing to build")
	_, err := engine.Run(context.Background(), Request{
		Name:   "fail",
		Source: untrackedSource(t, map[string]string{"input.txt": "x"}),
		Builder: BuilderFunc(func(ctx context.Context, build BuildContext) error {
			return builderErr
		}),
		Workspace: workspace,
	})
	if !errors.Is(err, builderErr) {
		t.Fatalf("builder error not passed through: %v", err)
	}

	var stageErr *Error
	if !errors.As(err, &stageErr) || stageErr.Stage != StageExecuteBuilder {
		t.Errorf("error does not name the builder stage: %v", err)
	}

	assertEmptyDir(t, workspace)
}

func TestRunMissingSourceRoot(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Run(context.Background(), Request{
		Name:      "copy",
		Source:    Source{Root: filepath.Join(t.TempDir(), "does-not-exist")},
		Builder:   BuilderFunc(copyInput),
		Workspace: t.TempDir(),
	})
	var stageErr *Error
	if !errors.As(err, &stageErr) || stageErr.Stage != StageResolveSource {
		t.Fatalf("error = %v, want a resolve-source failure", err)
	}
}

func TestRunRejectsBadRequests(t *testing.T) {
	engine, _ := newTestEngine(t)
	good := Request{
		Name:      "copy",
		Source:    untrackedSource(t, map[string]string{"input.txt": "x"}),
		Builder:   BuilderFunc(copyInput),
		Workspace: t.TempDir(),
	}

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"no_name", func(r *Request) { r.Name = "" }},
		{"name_with_separator", func(r *Request) { r.Name = "a/b" }},
		{"no_builder", func(r *Request) { r.Builder = nil }},
		{"no_source_root", func(r *Request) { r.Source.Root = "" }},
		{"no_workspace", func(r *Request) { r.Workspace = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := good
			tt.mutate(&req)
			_, err := engine.Run(context.Background(), req)
			var stageErr *Error
			if !errors.As(err, &stageErr) || stageErr.Stage != StageInit {
				t.Fatalf("error = %v, want an init-stage failure", err)
			}
		})
	}
}

func TestCaptureWalksNestedOutputAndSymlinks(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.Run(context.Background(), Request{
		Name:   "emit",
		Source: untrackedSource(t, map[string]string{"input.txt": "x"}),
		Builder: BuilderFunc(func(ctx context.Context, build BuildContext) error {
			out := build.OutputRoot
			if err := os.MkdirAll(filepath.Join(out, "nested"), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(out, "b.txt"), []byte("bee"), 0o644); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(out, "nested", "tool"), []byte("#!/bin/sh\n"), 0o755); err != nil {
				return err
			}
			return os.Symlink("b.txt", filepath.Join(out, "link.txt"))
		}),
		Workspace: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	contents := result.Manifest.Contents
	if len(contents) != 3 {
		t.Fatalf("captured %d entries, want 3", len(contents))
	}

	// Entries come back sorted by path.
	wantPaths := []string{"b.txt", "link.txt", "nested/tool"}
	for i, want := range wantPaths {
		if contents[i].Path != want {
			t.Errorf("contents[%d].Path = %q, want %q", i, contents[i].Path, want)
		}
	}

	// The symlink was read through: same content, same hash as the
	// real file.
	if contents[1].Hash != contents[0].Hash {
		t.Errorf("symlinked file hash %s differs from target hash %s", contents[1].Hash, contents[0].Hash)
	}

	if !contents[2].Executable {
		t.Error("executable bit lost on nested/tool")
	}
	if contents[0].Executable {
		t.Error("executable bit set on plain file b.txt")
	}
}

func TestCommandBuilderRunsProgram(t *testing.T) {
	engine, _ := newTestEngine(t)

	params := json.RawMessage(`{"mode":"fast"}`)
	script := `cp "$0"/input.txt "$1"/copied.txt && printf '%s' "$CAST_TRANSFORM_NAME:$CAST_TRANSFORM_PARAMS" > "$1"/env.txt`

	result, err := engine.Run(context.Background(), Request{
		Name:      "shellcopy",
		Source:    untrackedSource(t, map[string]string{"input.txt": "via shell"}),
		Builder:   &CommandBuilder{Program: "sh", Args: []string{"-c", script}},
		Params:    params,
		Workspace: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(result.Root, "copied.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "via shell" {
		t.Errorf("output = %q, want %q", data, "via shell")
	}

	env, err := os.ReadFile(filepath.Join(result.Root, "env.txt"))
	if err != nil {
		t.Fatalf("reading env capture: %v", err)
	}
	if want := `shellcopy:{"mode":"fast"}`; string(env) != want {
		t.Errorf("builder environment = %q, want %q", env, want)
	}

	chain := result.Manifest.Chain()
	if len(chain) != 1 || string(chain[0].Params) != string(params) {
		t.Errorf("params not recorded verbatim: %+v", chain)
	}
}

func TestCommandBuilderExitPassthrough(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Run(context.Background(), Request{
		Name:      "fail",
		Source:    untrackedSource(t, map[string]string{"input.txt": "x"}),
		Builder:   &CommandBuilder{Program: "sh", Args: []string{"-c", `echo "tool exploded" >&2; exit 3`}},
		Workspace: t.TempDir(),
	})

	var builderErr *BuilderError
	if !errors.As(err, &builderErr) {
		t.Fatalf("error = %v, want a BuilderError", err)
	}
	if builderErr.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", builderErr.ExitCode)
	}
	if builderErr.Stderr != "tool exploded" {
		t.Errorf("stderr = %q, want %q", builderErr.Stderr, "tool exploded")
	}
}

func TestRepresentativeHash(t *testing.T) {
	real := hash.Format(hash.Sum([]byte("archive bytes")))

	withArchive := &manifest.Manifest{
		SchemaVersion: manifest.SchemaVersion,
		Dataset:       &manifest.Dataset{Name: "t", Version: "1.0"},
		Source:        &manifest.Source{ArchiveHash: real},
		Contents:      []manifest.ContentEntry{},
	}
	got, err := RepresentativeHash(withArchive)
	if err != nil {
		t.Fatalf("RepresentativeHash failed: %v", err)
	}
	if got != real {
		t.Errorf("hash = %s, want the archive hash %s", got, real)
	}

	// The synthetic sentinel falls back to the canonical manifest
	// hash, as does an absent archive hash.
	for _, archiveHash := range []string{manifest.TransformedArchiveHash, ""} {
		m := &manifest.Manifest{
			SchemaVersion: manifest.SchemaVersion,
			Dataset:       &manifest.Dataset{Name: "t", Version: "1.0"},
			Source:        &manifest.Source{ArchiveHash: archiveHash},
			Contents:      []manifest.ContentEntry{},
		}
		want, err := m.CanonicalHash()
		if err != nil {
			t.Fatalf("CanonicalHash failed: %v", err)
		}
		got, err := RepresentativeHash(m)
		if err != nil {
			t.Fatalf("RepresentativeHash failed: %v", err)
		}
		if got != want {
			t.Errorf("archive_hash %q: hash = %s, want canonical %s", archiveHash, got, want)
		}
	}
}

// assertEmptyDir fails the test if dir has any entries: failed runs
// must clean up their scratch space and never create the target.
func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	for _, entry := range entries {
		t.Errorf("leftover entry after failed run: %s", entry.Name())
	}
}
