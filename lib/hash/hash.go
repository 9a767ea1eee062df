// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hash computes the BLAKE3 content digests that address every
// blob in a cast store, and maps digest strings to their sharded
// on-disk locations.
package hash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names the digest algorithm used for all cast content
// hashes.
const Algorithm = "blake3"

// Prefix is the canonical algorithm prefix on the string form of a
// digest, separator included.
const Prefix = Algorithm + ":"

// Digest is a 32-byte BLAKE3 digest of blob content.
type Digest [32]byte

// Sum computes the BLAKE3 digest of data.
func Sum(data []byte) Digest {
	return blake3.Sum256(data)
}

// Hasher accumulates streamed content into a BLAKE3 digest. It
// implements [io.Writer], so content can be hashed while it is being
// copied somewhere else (via [io.MultiWriter] or [io.TeeReader])
// without a second pass over the bytes.
type Hasher struct {
	inner *blake3.Hasher
}

// NewHasher returns a Hasher ready to accept content.
func NewHasher() *Hasher {
	return &Hasher{inner: blake3.New()}
}

// Write absorbs p into the digest. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.inner.Write(p)
}

// Digest returns the digest of everything written so far.
func (h *Hasher) Digest() Digest {
	var digest Digest
	copy(digest[:], h.inner.Sum(nil))
	return digest
}

// SumFile computes the BLAKE3 digest of the file at path. The file is
// streamed through the hash function (via io.Copy) so memory usage
// stays constant regardless of file size. Returns the digest and the
// number of bytes hashed.
func SumFile(path string) (Digest, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, 0, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := NewHasher()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return Digest{}, 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return hasher.Digest(), size, nil
}

// Format returns the canonical string form of a digest: the algorithm
// prefix followed by 64 lowercase hex characters. This is the form
// written into manifests and printed by the CLI.
func Format(digest Digest) string {
	return Prefix + hex.EncodeToString(digest[:])
}

// Parse parses a digest string into a Digest. The algorithm prefix is
// optional; the hex part must decode to exactly 32 bytes.
func Parse(hashString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(StripPrefix(hashString))
	if err != nil {
		return digest, fmt.Errorf("parsing content hash %q: %w", hashString, err)
	}
	if len(decoded) != 32 {
		return digest, fmt.Errorf("content hash %q is %d bytes, want 32", hashString, len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}

// StripPrefix removes an algorithm prefix ("blake3:", "sha256:", ...)
// from a digest string, if one is present.
func StripPrefix(hashString string) string {
	if _, rest, found := strings.Cut(hashString, ":"); found {
		return rest
	}
	return hashString
}

// StorePath maps a content hash to its location under a store root:
//
//	<root>/store/<hash[0:2]>/<hash[2:4]>/<hash>
//
// The two 2-character prefix levels bound fan-out to at most 65,536
// shard directories. The function is pure: it strips any algorithm
// prefix and normalizes to lowercase, so equivalent spellings of one
// digest always map to the same path, and distinct digests never
// collide (the full digest is the filename). The hex part must have
// at least 4 characters to populate both shard levels.
func StorePath(root, hashString string) (string, error) {
	hexPart := strings.ToLower(StripPrefix(hashString))
	if len(hexPart) < 4 {
		return "", fmt.Errorf("content hash %q is too short to address: need at least 4 hex characters after the algorithm prefix", hashString)
	}
	for _, c := range hexPart {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("content hash %q contains non-hex character %q", hashString, c)
		}
	}
	return filepath.Join(root, "store", hexPart[0:2], hexPart[2:4], hexPart), nil
}
