// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// testManifest returns a minimal valid manifest with two content
// entries in distinct directories.
func testManifest() *Manifest {
	return &Manifest{
		SchemaVersion: SchemaVersion,
		Dataset: &Dataset{
			Name:    "swissprot",
			Version: "2026_03",
		},
		Source: &Source{
			URL:         "https://example.org/swissprot.tar.gz",
			ArchiveHash: "blake3:" + strings.Repeat("ab", 32),
		},
		Contents: []ContentEntry{
			{Path: "dirA/x", Hash: "blake3:" + strings.Repeat("11", 32), Size: 100},
			{Path: "dirB/y", Hash: "blake3:" + strings.Repeat("22", 32), Size: 200, Executable: true},
		},
	}
}

func TestValidateAcceptsMinimalManifest(t *testing.T) {
	input := `{
		"schema_version": "1.0",
		"dataset": {"name": "t", "version": "1.0"},
		"source": {"url": "t://", "archive_hash": "h:test"},
		"contents": [{"path": "a.txt", "hash": "h:h1", "size": 5}]
	}`

	m, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate failed on a well-formed manifest: %v", err)
	}
}

func TestValidateRequiresDataset(t *testing.T) {
	input := `{
		"schema_version": "1.0",
		"source": {"url": "t://", "archive_hash": "h:test"},
		"contents": [{"path": "a.txt", "hash": "h:h1", "size": 5}]
	}`

	m, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	err = m.Validate()
	if err == nil {
		t.Fatal("Validate accepted a manifest without a dataset section")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate error is not a *ValidationError: %v", err)
	}
	if verr.Field != "dataset" {
		t.Errorf("ValidationError.Field = %q, want %q", verr.Field, "dataset")
	}
}

func TestValidateReportsAllViolationsAtOnce(t *testing.T) {
	m := &Manifest{
		Contents: []ContentEntry{
			{Path: "", Hash: "", Size: -1},
		},
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("Validate accepted an empty manifest")
	}

	// schema_version, dataset, source, entry path, entry hash, entry
	// size must all be reported in a single call.
	for _, field := range []string{
		"schema_version",
		"dataset",
		"source",
		"contents[0].path",
		"contents[0].hash",
		"contents[0].size",
	} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("Validate error does not mention %s:\n%v", field, err)
		}
	}
}

func TestValidateRejectsDuplicatePaths(t *testing.T) {
	m := testManifest()
	m.Contents = append(m.Contents, m.Contents[0])

	err := m.Validate()
	if err == nil {
		t.Fatal("Validate accepted duplicate content paths")
	}
	if !strings.Contains(err.Error(), "contents[2].path") {
		t.Errorf("Validate error does not name the duplicate entry: %v", err)
	}
}

func TestValidateRejectsMalformedHashes(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"prefix_only", "blake3:"},
		{"path_characters", "blake3:../escape"},
		{"whitespace", "blake3:ab cd"},
		{"uppercase_prefix", "BLAKE3:abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testManifest()
			m.Contents[0].Hash = tt.hash
			if err := m.Validate(); err == nil {
				t.Errorf("Validate accepted hash %q", tt.hash)
			}
		})
	}
}

func TestValidateRequiresContentsList(t *testing.T) {
	m := testManifest()
	m.Contents = nil
	if err := m.Validate(); err == nil {
		t.Error("Validate accepted a manifest without a contents list")
	}

	// An empty list is a valid dataset with no files.
	m.Contents = []ContentEntry{}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate rejected an empty contents list: %v", err)
	}
}

func TestParseErrorOnMalformedJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	if err == nil {
		t.Fatal("Parse accepted malformed JSON")
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Errorf("Parse error is not a *ParseError: %v", err)
	}
}

func TestTotalSize(t *testing.T) {
	m := testManifest()
	if got := m.TotalSize(); got != 300 {
		t.Errorf("TotalSize = %d, want 300", got)
	}

	m.Contents = nil
	if got := m.TotalSize(); got != 0 {
		t.Errorf("TotalSize of empty manifest = %d, want 0", got)
	}
}

func TestFilterPathContaining(t *testing.T) {
	m := testManifest()

	filtered := m.FilterPathContaining("dirA")
	if len(filtered.Contents) != 1 {
		t.Fatalf("filtered contents has %d entries, want 1", len(filtered.Contents))
	}
	if filtered.Contents[0].Path != "dirA/x" {
		t.Errorf("filtered entry path = %q, want %q", filtered.Contents[0].Path, "dirA/x")
	}

	// The input manifest is untouched.
	if len(m.Contents) != 2 {
		t.Errorf("filter mutated the input manifest: %d entries, want 2", len(m.Contents))
	}
	if m.Dataset.Description != "" {
		t.Errorf("filter mutated the input description: %q", m.Dataset.Description)
	}

	// The applied filter is recorded in the description.
	if !strings.Contains(filtered.Dataset.Description, "dirA") {
		t.Errorf("filtered description does not record the filter: %q", filtered.Dataset.Description)
	}
}

func TestFilterMatchesSubstringsNotPrefixes(t *testing.T) {
	m := testManifest()
	m.Contents = []ContentEntry{
		{Path: "dir1/a", Hash: "h:a1", Size: 1},
		{Path: "mydir123/b", Hash: "h:b2", Size: 2},
		{Path: "other/c", Hash: "h:c3", Size: 3},
	}

	filtered := m.FilterPathContaining("dir1")
	if len(filtered.Contents) != 2 {
		t.Fatalf("filtered contents has %d entries, want 2 (containment matches mid-path)", len(filtered.Contents))
	}
}

func TestChainEmptyWhenAbsent(t *testing.T) {
	input := `{
		"schema_version": "1.0",
		"dataset": {"name": "t", "version": "1.0"},
		"source": {},
		"contents": []
	}`

	m, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	chain := m.Chain()
	if chain == nil {
		t.Fatal("Chain returned nil for a manifest without transformations")
	}
	if len(chain) != 0 {
		t.Errorf("Chain length = %d, want 0", len(chain))
	}
}

func TestChainReturnsACopy(t *testing.T) {
	m := testManifest()
	m.Transformations = []TransformationRecord{
		{Type: "extract", From: "blake3:aabb"},
	}

	chain := m.Chain()
	chain[0].Type = "mutated"

	if m.Transformations[0].Type != "extract" {
		t.Error("mutating the returned chain changed the manifest")
	}
}

func TestExtendChainPreservesOrderAndInput(t *testing.T) {
	t1 := TransformationRecord{Type: "extract", From: "blake3:aaaa"}
	t2 := TransformationRecord{Type: "index", From: "blake3:bbbb"}

	chain := []TransformationRecord{t1}
	extended := ExtendChain(chain, t2)

	if len(extended) != 2 {
		t.Fatalf("extended chain length = %d, want 2", len(extended))
	}
	if extended[0].Type != "extract" || extended[1].Type != "index" {
		t.Errorf("extended chain order = [%s, %s], want [extract, index]", extended[0].Type, extended[1].Type)
	}
	if len(chain) != 1 {
		t.Errorf("ExtendChain mutated the input chain: length %d, want 1", len(chain))
	}
}

func TestExtendChainNeverAliases(t *testing.T) {
	// Two transformations reading the same source chain must not
	// clobber each other, even when the source slice has spare
	// capacity.
	base := make([]TransformationRecord, 1, 8)
	base[0] = TransformationRecord{Type: "extract", From: "blake3:aaaa"}

	left := ExtendChain(base, TransformationRecord{Type: "left", From: "h:l"})
	right := ExtendChain(base, TransformationRecord{Type: "right", From: "h:r"})

	if left[1].Type != "left" {
		t.Errorf("left chain corrupted: second record is %q", left[1].Type)
	}
	if right[1].Type != "right" {
		t.Errorf("right chain corrupted: second record is %q", right[1].Type)
	}
}

func TestCanonicalHashStableAndContentSensitive(t *testing.T) {
	m := testManifest()

	first, err := m.CanonicalHash()
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}
	second, err := m.CanonicalHash()
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}
	if first != second {
		t.Errorf("CanonicalHash is not deterministic: %s != %s", first, second)
	}
	if !strings.HasPrefix(first, "blake3:") {
		t.Errorf("CanonicalHash %q lacks the algorithm prefix", first)
	}

	changed := testManifest()
	changed.Dataset.Version = "2026_04"
	other, err := changed.CanonicalHash()
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}
	if other == first {
		t.Error("CanonicalHash did not change when the manifest changed")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	m := testManifest()
	m.Transformations = []TransformationRecord{
		{Type: "extract", From: UnknownProvenance, Params: []byte(`{"archive":"db.tar.gz"}`)},
	}
	path := filepath.Join(t.TempDir(), "manifest.json")

	if err := m.Write(path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if loaded.Dataset.Name != m.Dataset.Name {
		t.Errorf("dataset name = %q, want %q", loaded.Dataset.Name, m.Dataset.Name)
	}
	if len(loaded.Contents) != len(m.Contents) {
		t.Fatalf("contents length = %d, want %d", len(loaded.Contents), len(m.Contents))
	}
	if loaded.Contents[1].Executable != true {
		t.Error("executable bit lost in round trip")
	}
	if len(loaded.Transformations) != 1 || loaded.Transformations[0].Type != "extract" {
		t.Errorf("transformation chain lost in round trip: %+v", loaded.Transformations)
	}

	canonicalBefore, err := m.CanonicalHash()
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}
	canonicalAfter, err := loaded.CanonicalHash()
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}
	if canonicalBefore != canonicalAfter {
		t.Error("canonical hash changed across a write/read round trip")
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Error("Read succeeded on a missing file, want error")
	}
}
