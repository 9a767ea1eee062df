// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bureau-foundation/cast/lib/manifest"
)

// captureOutputs walks the builder's output tree and stores every
// file it finds, returning the content entries for the derived
// manifest sorted by path. Symlinked files are read through so the
// stored blob is the real content; symlinked directories are
// descended with a visited set so link cycles terminate. Any I/O or
// hashing failure aborts the whole capture.
func (e *Engine) captureOutputs(outputRoot string) ([]manifest.ContentEntry, error) {
	var entries []manifest.ContentEntry
	visited := make(map[string]bool)

	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return fmt.Errorf("resolving output directory %s: %w", dir, err)
		}
		if visited[resolved] {
			return nil
		}
		visited[resolved] = true

		dirEntries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("reading output directory %s: %w", dir, err)
		}
		for _, dirEntry := range dirEntries {
			childPath := filepath.Join(dir, dirEntry.Name())
			childRel := path.Join(rel, dirEntry.Name())

			// Stat follows symlinks, so a link to a file captures
			// the target's content and mode.
			info, err := os.Stat(childPath)
			if err != nil {
				return fmt.Errorf("inspecting output %s: %w", childRel, err)
			}

			switch {
			case info.IsDir():
				if err := walk(childPath, childRel); err != nil {
					return err
				}
			case info.Mode().IsRegular():
				hashString, size, err := e.store.PutFile(childPath)
				if err != nil {
					return fmt.Errorf("storing output %s: %w", childRel, err)
				}
				entries = append(entries, manifest.ContentEntry{
					Path:       childRel,
					Hash:       hashString,
					Size:       size,
					Executable: info.Mode()&0o111 != 0,
				})
			default:
				return fmt.Errorf("output %s has unsupported file type %s", childRel, info.Mode().Type())
			}
		}
		return nil
	}

	if err := walk(outputRoot, ""); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}
