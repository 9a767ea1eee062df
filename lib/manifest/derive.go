// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bureau-foundation/cast/lib/hash"
)

// TotalSize returns the sum of all content entry sizes in bytes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, entry := range m.Contents {
		total += entry.Size
	}
	return total
}

// FilterPathContaining returns a new manifest whose contents are the
// entries whose path contains needle as a substring. The match is
// containment, not prefix-anchored: filtering by "dir1" also matches
// "mydir123/x". The dataset description is annotated with the filter
// applied. The receiver is never mutated.
func (m *Manifest) FilterPathContaining(needle string) *Manifest {
	filtered := &Manifest{
		SchemaVersion:   m.SchemaVersion,
		Contents:        make([]ContentEntry, 0, len(m.Contents)),
		Transformations: m.Chain(),
	}
	if len(filtered.Transformations) == 0 {
		filtered.Transformations = nil
	}

	if m.Dataset != nil {
		dataset := *m.Dataset
		note := fmt.Sprintf("filtered by %q", needle)
		if dataset.Description == "" {
			dataset.Description = note
		} else {
			dataset.Description += "; " + note
		}
		filtered.Dataset = &dataset
	}
	if m.Source != nil {
		source := *m.Source
		filtered.Source = &source
	}

	for _, entry := range m.Contents {
		if strings.Contains(entry.Path, needle) {
			filtered.Contents = append(filtered.Contents, entry)
		}
	}
	return filtered
}

// Chain returns a copy of the manifest's transformation chain, oldest
// record first. The copy is never nil, so callers can extend it
// without checking for an absent chain, and mutating it never touches
// the manifest.
func (m *Manifest) Chain() []TransformationRecord {
	chain := make([]TransformationRecord, len(m.Transformations))
	copy(chain, m.Transformations)
	return chain
}

// ExtendChain returns a new chain consisting of the given chain
// followed by record. The input chain's backing array is never
// aliased: the result is always a fresh allocation, so extending one
// source chain twice (two transformations reading the same manifest)
// cannot corrupt either result.
func ExtendChain(chain []TransformationRecord, record TransformationRecord) []TransformationRecord {
	extended := make([]TransformationRecord, len(chain), len(chain)+1)
	copy(extended, chain)
	return append(extended, record)
}

// CanonicalHash computes the BLAKE3 digest of the manifest's canonical
// JSON encoding (compact, fields in schema order) and returns it in
// the prefixed string form. Two manifests with identical content have
// identical canonical hashes, which makes the hash usable as a stable
// identity for manifests that have no real source archive.
func (m *Manifest) CanonicalHash() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding manifest for hashing: %w", err)
	}
	return hash.Format(hash.Sum(data)), nil
}
