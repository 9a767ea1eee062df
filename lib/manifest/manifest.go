// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest defines the dataset manifest: the versioned
// metadata document describing a dataset's file inventory, source
// provenance, and transformation history.
//
// The JSON encoding of [Manifest] is the stable cross-process
// contract. Manifests are immutable values — every operation that
// "edits" a manifest ([Manifest.FilterPathContaining], [ExtendChain])
// returns a new one and leaves the input untouched, because multiple
// transformations may read the same source manifest concurrently.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaVersion is the manifest schema version written by this
// package. Readers accept any non-empty version string; the field
// exists so future schema changes can be detected rather than
// misparsed.
const SchemaVersion = "1.0"

// UnknownProvenance is the sentinel recorded in a transformation's
// "from" field when the source carried no manifest, so no upstream
// provenance exists.
const UnknownProvenance = "unknown"

// TransformedArchiveHash is the sentinel recorded in source.archive_hash
// of a derived manifest. A derived dataset has no source archive; the
// sentinel marks the manifest as transformation output without leaving
// the field empty.
const TransformedArchiveHash = "transformed"

// Manifest describes one version of a dataset: what files it contains
// (by content hash), where it came from, and how it was derived.
type Manifest struct {
	SchemaVersion string   `json:"schema_version"`
	Dataset       *Dataset `json:"dataset"`
	Source        *Source  `json:"source"`

	// Contents lists every file in the dataset. Paths are relative,
	// unique within the manifest, and use forward slashes.
	Contents []ContentEntry `json:"contents"`

	// Transformations is the provenance chain, oldest first. The chain
	// is append-only: a transformation copies the prior chain and
	// appends exactly one record. Absent in manifests that wrap
	// original (untransformed) content.
	Transformations []TransformationRecord `json:"transformations,omitempty"`
}

// Dataset identifies the dataset a manifest describes.
type Dataset struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// Source records where the dataset's content came from. For datasets
// produced by a transformation, URL carries a synthetic transform://
// reference and ArchiveHash is [TransformedArchiveHash].
type Source struct {
	URL          string `json:"url,omitempty"`
	DownloadDate string `json:"download_date,omitempty"`
	ServerMTime  string `json:"server_mtime,omitempty"`
	ArchiveHash  string `json:"archive_hash,omitempty"`
}

// ContentEntry binds one relative path to the content hash, size, and
// executable bit of the file stored there.
type ContentEntry struct {
	Path       string `json:"path"`
	Hash       string `json:"hash"`
	Size       int64  `json:"size"`
	Executable bool   `json:"executable"`
}

// TransformationRecord describes one provenance-tracked processing
// step: which transformation ran (Type), the representative hash of
// the state it consumed (From), and the parameters it ran with.
type TransformationRecord struct {
	Type   string          `json:"type"`
	From   string          `json:"from"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ParseError reports a syntactically malformed manifest. Path is the
// source file when the manifest was read from disk, empty when parsed
// from bytes.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parsing manifest: %v", e.Err)
	}
	return fmt.Sprintf("parsing manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a manifest from its JSON encoding. Returns a
// [*ParseError] on malformed input. Parse does not validate — a
// syntactically well-formed manifest with missing required fields
// parses fine and fails [Manifest.Validate].
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &m, nil
}

// Read loads and parses the manifest file at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &m, nil
}

// Encode returns the manifest's JSON encoding, indented for human
// inspection, with a trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Write atomically persists the manifest to path. The file is written
// to a temporary location first, then renamed, so readers never see a
// partially-written manifest.
func (m *Manifest) Write(path string) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("creating temp manifest file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp manifest file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting manifest permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming manifest to %s: %w", path, err)
	}

	success = true
	return nil
}
