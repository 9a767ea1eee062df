// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package builders provides pre-filled transformation requests for
// common dataset processing steps: unpacking archives and indexing
// sequence files with an external tool. Each preset resolves its
// input up front, records what it decided in the transformation
// parameters, and returns a [transform.Request] ready for
// [transform.Engine.Run].
package builders

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/cast/lib/materialize"
)

// ErrInputNotFound reports that auto-detection matched no file.
var ErrInputNotFound = errors.New("no input file found")

// ErrAmbiguousInput reports that auto-detection matched more than one
// file, so the caller must name the input explicitly.
var ErrAmbiguousInput = errors.New("multiple candidate input files")

// FindByExtension walks the tree under root and returns the single
// file whose name ends in one of the given extensions, as a
// slash-separated path relative to root. The dataset metadata
// directory is skipped. Zero matches return [ErrInputNotFound];
// more than one returns [ErrAmbiguousInput] listing the candidates.
func FindByExtension(root string, extensions []string) (string, error) {
	var candidates []string

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == materialize.MetaDir && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		for _, extension := range extensions {
			if strings.HasSuffix(entry.Name(), extension) {
				relative, err := filepath.Rel(root, path)
				if err != nil {
					return err
				}
				candidates = append(candidates, filepath.ToSlash(relative))
				break
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", root, err)
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: nothing matching %s under %s",
			ErrInputNotFound, strings.Join(extensions, ", "), root)
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousInput, strings.Join(candidates, ", "))
	}
}
