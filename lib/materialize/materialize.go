// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package materialize realizes a manifest as a working tree of
// references into the content store.
//
// Each content entry becomes a symlink at its relative path pointing
// at the blob's absolute store location. Materialization is purely
// metadata-driven: links may dangle when a blob is not yet present,
// and later access failures surface as ordinary I/O errors. The tree
// carries its own metadata under the reserved [MetaDir] directory —
// the manifest that produced it and a shell-sourceable binding of the
// dataset's name to the tree location.
//
// Materialization is all-or-nothing. The manifest is validated before
// any filesystem work, the tree is built in a scratch directory next
// to the target, and a single atomic rename publishes it: a partially
// materialized tree is never visible at the target path.
package materialize

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bureau-foundation/cast/lib/hash"
	"github.com/bureau-foundation/cast/lib/manifest"
	"github.com/bureau-foundation/cast/lib/store"
)

// MetaDir is the reserved directory inside a materialized tree that
// holds the tree's own metadata. Content entries may not use it.
const MetaDir = ".cast"

// Names of the metadata files inside MetaDir.
const (
	manifestFile = "manifest.json"
	envFile      = "env"
)

// ManifestPath returns the path of the manifest a materialized tree
// carries.
func ManifestPath(root string) string {
	return filepath.Join(root, MetaDir, manifestFile)
}

// EnvPath returns the path of the binding file a materialized tree
// carries.
func EnvPath(root string) string {
	return filepath.Join(root, MetaDir, envFile)
}

// Options configures a Materializer.
type Options struct {
	// Logger receives materialization activity. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// Materializer realizes manifests against one content store.
type Materializer struct {
	store  *store.Store
	logger *slog.Logger
}

// New returns a Materializer bound to the given store.
func New(st *store.Store, opts Options) *Materializer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Materializer{store: st, logger: logger}
}

// Result describes a materialized tree.
type Result struct {
	// Root is the tree location (the targetDir passed in).
	Root string `json:"root"`

	// ManifestPath is the manifest copy inside the tree.
	ManifestPath string `json:"manifest_path"`

	// EnvPath is the binding file inside the tree. It contains one
	// line, <Binding>=<Root>, sourceable from a shell.
	EnvPath string `json:"env_path"`

	// Binding is the name-derived identifier the tree is bound to.
	Binding string `json:"binding"`
}

// Materialize realizes m as a working tree at targetDir, which must
// not already exist. The manifest is validated first; any violation
// aborts before the filesystem is touched. Blob presence is not
// checked — links to absent blobs dangle until the blob is put.
func (mz *Materializer) Materialize(m *manifest.Manifest, targetDir string) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	// The store root must be absolute so link targets remain valid
	// from any working directory.
	storeRoot, err := filepath.Abs(mz.store.Root())
	if err != nil {
		return nil, fmt.Errorf("resolving store root: %w", err)
	}

	// Resolve every link target before creating anything: an entry
	// whose hash cannot be addressed fails the whole call with zero
	// side effects, same as a validation error.
	targets, err := linkTargets(m, storeRoot)
	if err != nil {
		return nil, err
	}

	absTarget, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("resolving target directory: %w", err)
	}
	if _, err := os.Lstat(absTarget); err == nil {
		return nil, fmt.Errorf("target directory %s already exists; materialize into a fresh path", absTarget)
	}

	parent := filepath.Dir(absTarget)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory %s: %w", parent, err)
	}

	// Build in a scratch directory next to the target so the final
	// rename stays on one filesystem.
	scratch, err := os.MkdirTemp(parent, "."+filepath.Base(absTarget)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	success := false
	defer func() {
		if !success {
			os.RemoveAll(scratch)
		}
	}()

	for _, link := range targets {
		linkPath := filepath.Join(scratch, filepath.FromSlash(link.path))
		if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", link.path, err)
		}
		if err := os.Symlink(link.target, linkPath); err != nil {
			return nil, fmt.Errorf("linking %s: %w", link.path, err)
		}
	}

	binding := BindingName(m.Dataset.Name)
	if err := writeMetadata(scratch, m, binding, absTarget); err != nil {
		return nil, err
	}

	if err := os.Rename(scratch, absTarget); err != nil {
		return nil, fmt.Errorf("publishing materialized tree at %s: %w", absTarget, err)
	}
	success = true

	mz.logger.Info("materialized dataset",
		"name", m.Dataset.Name,
		"version", m.Dataset.Version,
		"entries", len(m.Contents),
		"root", absTarget)

	return &Result{
		Root:         absTarget,
		ManifestPath: ManifestPath(absTarget),
		EnvPath:      EnvPath(absTarget),
		Binding:      binding,
	}, nil
}

// link is one resolved content entry: the tree-relative path and the
// absolute store path it points at.
type link struct {
	path   string
	target string
}

// linkTargets resolves all content entries to store locations and
// checks that every entry path stays inside the tree and outside the
// reserved metadata directory. All offending entries are reported
// together.
func linkTargets(m *manifest.Manifest, storeRoot string) ([]link, error) {
	var errs []error
	links := make([]link, 0, len(m.Contents))

	for i, entry := range m.Contents {
		field := fmt.Sprintf("contents[%d].path", i)

		if !filepath.IsLocal(filepath.FromSlash(entry.Path)) {
			errs = append(errs, &manifest.ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("%q escapes the working tree; paths must be relative and stay inside it", entry.Path),
			})
			continue
		}
		if entry.Path == MetaDir || strings.HasPrefix(entry.Path, MetaDir+"/") {
			errs = append(errs, &manifest.ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("%q is inside %s, which is reserved for dataset metadata", entry.Path, MetaDir),
			})
			continue
		}

		target, err := hash.StorePath(storeRoot, entry.Hash)
		if err != nil {
			errs = append(errs, fmt.Errorf("contents[%d].hash: %w", i, err))
			continue
		}
		links = append(links, link{path: entry.Path, target: target})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return links, nil
}

// writeMetadata populates the reserved metadata directory in the
// scratch tree: the manifest itself and the binding file. finalRoot
// is the path the tree will live at after the publishing rename —
// the binding must name that, not the scratch location.
func writeMetadata(scratch string, m *manifest.Manifest, binding, finalRoot string) error {
	metaPath := filepath.Join(scratch, MetaDir)
	if err := os.MkdirAll(metaPath, 0o755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	if err := m.Write(filepath.Join(metaPath, manifestFile)); err != nil {
		return err
	}

	env := fmt.Sprintf("%s=%s\n", binding, finalRoot)
	if err := os.WriteFile(filepath.Join(metaPath, envFile), []byte(env), 0o644); err != nil {
		return fmt.Errorf("writing binding file: %w", err)
	}
	return nil
}

// separatorRun matches a maximal run of characters that cannot appear
// in an identifier binding.
var separatorRun = regexp.MustCompile(`[^A-Z0-9]+`)

// BindingName derives the identifier a dataset is bound to from its
// name: upper-cased, with every run of non-alphanumeric characters
// collapsed to a single underscore. A leading digit gets an
// underscore prefix so the result is always usable as an environment
// variable name.
func BindingName(name string) string {
	binding := separatorRun.ReplaceAllString(strings.ToUpper(name), "_")
	if binding == "" {
		return "_"
	}
	if binding[0] >= '0' && binding[0] <= '9' {
		binding = "_" + binding
	}
	return binding
}
