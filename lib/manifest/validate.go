// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"errors"
	"fmt"
	"regexp"
)

// ValidationError reports a single missing or invalid manifest field.
// Reason includes the concrete fix. [Manifest.Validate] joins all
// violations into one error via [errors.Join] so callers see the full
// list at once.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid manifest: %s: %s", e.Field, e.Reason)
}

// entryHashPattern is the shape check for content hashes: an optional
// lowercase algorithm prefix, then a non-empty alphanumeric digest
// token. The manifest layer does not know the digest algorithm, so it
// accepts any alphanumeric encoding (hex, base32, base58); the store
// enforces hex when it addresses a blob.
var entryHashPattern = regexp.MustCompile(`^([a-z0-9]+:)?[0-9A-Za-z]+$`)

// Validate checks the manifest against the schema requirements:
// schema_version, dataset (with name and version), source, and
// contents must all be present; every content entry needs a non-empty
// path unique within the manifest, a digest-shaped hash, and a
// non-negative size. All violations are reported together, each as a
// [*ValidationError], joined in field order.
//
// Validation has no side effects and does not touch the store —
// dangling hashes are legal, presence is checked at access time.
func (m *Manifest) Validate() error {
	var errs []error

	invalid := func(field, reason string) {
		errs = append(errs, &ValidationError{Field: field, Reason: reason})
	}

	if m.SchemaVersion == "" {
		invalid("schema_version", fmt.Sprintf("required; current schema version is %q", SchemaVersion))
	}

	if m.Dataset == nil {
		invalid("dataset", "required; add a dataset object with name and version")
	} else {
		if m.Dataset.Name == "" {
			invalid("dataset.name", "must not be empty")
		}
		if m.Dataset.Version == "" {
			invalid("dataset.version", "must not be empty")
		}
	}

	if m.Source == nil {
		invalid("source", "required; add a source object (its fields may all be omitted)")
	}

	if m.Contents == nil {
		invalid("contents", "required; use an empty list for a dataset with no files")
	}

	seen := make(map[string]int, len(m.Contents))
	for i, entry := range m.Contents {
		field := fmt.Sprintf("contents[%d]", i)

		if entry.Path == "" {
			invalid(field+".path", "must not be empty")
		} else if first, dup := seen[entry.Path]; dup {
			invalid(field+".path", fmt.Sprintf("duplicates the path of contents[%d]; paths must be unique within a manifest", first))
		} else {
			seen[entry.Path] = i
		}

		if !entryHashPattern.MatchString(entry.Hash) {
			invalid(field+".hash", fmt.Sprintf("%q is not a content digest; expected an optional algorithm prefix followed by the digest, like %q", entry.Hash, "blake3:af1349b9..."))
		}

		if entry.Size < 0 {
			invalid(field+".size", fmt.Sprintf("is %d; sizes must be non-negative", entry.Size))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
