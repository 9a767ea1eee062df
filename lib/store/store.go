// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store implements the write-once, hash-addressed blob store.
//
// Every blob lives at a path computed purely from its BLAKE3 digest
// ([hash.StorePath]), so storing identical bytes twice is a no-op
// beyond hash computation, and independent processes sharing one
// store root can put blobs concurrently without coordination: writes
// go to a temp file first and are renamed into place atomically, so a
// partially written blob is never visible at its final path, and two
// processes racing to store identical content converge on the same
// result.
//
// Stored blobs are read-only (mode 0444, or 0555 when the executable
// bit is recorded). Materialized trees reference them through
// symlinks; the read-only mode keeps a write through such a link from
// corrupting the store.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/cast/lib/hash"
)

// Directory names within the store root.
const (
	storeDir = "store"
	tmpDir   = "tmp"
)

// ErrNotFound means no blob is stored under the requested hash.
var ErrNotFound = errors.New("blob not found in store")

// Config configures a Store.
type Config struct {
	// Root is the store root directory. The sharded blob tree lives
	// under <Root>/store; temp files for in-flight writes live under
	// <Root>/tmp. Required.
	Root string

	// Logger receives store activity. Defaults to a discard logger.
	Logger *slog.Logger
}

// Store is a handle to one store root. The handle binds the root once
// at open time; multiple independently configured stores can coexist
// in one process.
type Store struct {
	root   string
	logger *slog.Logger
}

// Open creates the store directory structure if it does not exist and
// returns a handle bound to the root.
func Open(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("store: Config.Root is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	for _, dir := range []string{
		cfg.Root,
		filepath.Join(cfg.Root, storeDir),
		filepath.Join(cfg.Root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: cfg.Root, logger: logger}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// PathFor returns the sharded path a hash addresses under this store,
// whether or not a blob is present there.
func (s *Store) PathFor(hashString string) (string, error) {
	return hash.StorePath(s.root, hashString)
}

// Put stores data under its content hash and returns the hash in
// prefixed string form. If the blob already exists the call is a
// no-op beyond hash computation; the hash is returned either way.
func (s *Store) Put(data []byte) (string, error) {
	hashString := hash.Format(hash.Sum(data))
	finalPath, err := hash.StorePath(s.root, hashString)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(finalPath); err == nil {
		s.logger.Debug("blob already present", "hash", hashString)
		return hashString, nil
	}

	if err := s.writeBlob(finalPath, 0o444, data); err != nil {
		return "", err
	}

	s.logger.Info("stored blob", "hash", hashString, "size", len(data))
	return hashString, nil
}

// PutFile stores the content of the file at path, streaming it through
// the hasher and into the store in one pass. The source file's
// executable bit carries over to the stored blob's mode. Returns the
// content hash and the number of bytes stored.
func (s *Store) PutFile(path string) (string, int64, error) {
	source, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stating %s: %w", path, err)
	}
	mode := os.FileMode(0o444)
	if info.Mode()&0o111 != 0 {
		mode = 0o555
	}

	// The content must be hashed before its final path is known, so
	// stream it to a temp file and hash on the way through. If the
	// blob turns out to already exist, the temp copy is discarded.
	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp blob file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	hasher := hash.NewHasher()
	size, err := io.Copy(io.MultiWriter(tmpFile, hasher), source)
	if err != nil {
		tmpFile.Close()
		return "", 0, fmt.Errorf("copying %s into store: %w", path, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return "", 0, fmt.Errorf("syncing temp blob file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", 0, fmt.Errorf("closing temp blob file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return "", 0, fmt.Errorf("setting blob permissions: %w", err)
	}

	hashString := hash.Format(hasher.Digest())
	finalPath, err := hash.StorePath(s.root, hashString)
	if err != nil {
		return "", 0, err
	}

	if err := s.publishBlob(tmpPath, finalPath); err != nil {
		return "", 0, err
	}
	success = true

	s.logger.Info("stored blob", "hash", hashString, "size", size, "from", path)
	return hashString, size, nil
}

// Get returns the filesystem path of the blob stored under the given
// hash. Returns an error wrapping [ErrNotFound] if no blob is present.
func (s *Store) Get(hashString string) (string, error) {
	path, err := hash.StorePath(s.root, hashString)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("blob %s: %w", hashString, ErrNotFound)
		}
		return "", fmt.Errorf("stating blob %s: %w", hashString, err)
	}
	return path, nil
}

// Exists reports whether a blob is stored under the given hash. This
// is a presence check only; it does not re-verify content integrity
// (see [Store.Verify] for that).
func (s *Store) Exists(hashString string) bool {
	path, err := hash.StorePath(s.root, hashString)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Verify re-hashes the blob stored under the given hash and reports
// whether the content still matches. The hash must be a full digest.
// Returns an error wrapping [ErrNotFound] if the blob is absent.
func (s *Store) Verify(hashString string) error {
	want, err := hash.Parse(hashString)
	if err != nil {
		return fmt.Errorf("verification needs a full digest: %w", err)
	}
	path, err := s.Get(hashString)
	if err != nil {
		return err
	}
	got, _, err := hash.SumFile(path)
	if err != nil {
		return fmt.Errorf("re-hashing blob %s: %w", hashString, err)
	}
	if got != want {
		return fmt.Errorf("blob %s is corrupt: content hashes to %s", hashString, hash.Format(got))
	}
	return nil
}

// Delete removes the blob stored under the given hash and prunes its
// shard directories if they become empty. Returns an error wrapping
// [ErrNotFound] if no blob is present. Deciding which blobs are safe
// to delete is the caller's problem — the store has no reference
// tracking.
func (s *Store) Delete(hashString string) error {
	path, err := s.Get(hashString)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing blob %s: %w", hashString, err)
	}
	s.logger.Info("deleted blob", "hash", hashString)

	// Prune now-empty shard directories. Removal fails on non-empty
	// directories, which is exactly the stop condition.
	shard := filepath.Dir(path)
	if err := os.Remove(shard); err == nil {
		os.Remove(filepath.Dir(shard))
	}
	return nil
}

// writeBlob writes data to a temp file, sets its mode, and publishes
// it at finalPath via atomic rename.
func (s *Store) writeBlob(finalPath string, mode os.FileMode, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*")
	if err != nil {
		return fmt.Errorf("creating temp blob file: %w", err)
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
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp blob file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp blob file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("setting blob permissions: %w", err)
	}

	if err := s.publishBlob(tmpPath, finalPath); err != nil {
		return err
	}
	success = true
	return nil
}

// publishBlob moves a fully written temp file to its final sharded
// path. If the blob appeared in the meantime (a concurrent put of
// identical content), the temp file is discarded — the existing copy
// is identical by construction.
func (s *Store) publishBlob(tmpPath, finalPath string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating blob shard directory: %w", err)
	}

	if _, err := os.Stat(finalPath); err == nil {
		os.Remove(tmpPath)
		s.logger.Debug("blob already present", "path", finalPath)
		return nil
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming blob to %s: %w", finalPath, err)
	}
	return nil
}
