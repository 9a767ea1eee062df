// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package builders

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/cast/lib/transform"
)

// Codec identifies the compression wrapping a tar archive. Codec
// names are recorded in transformation parameters, so they are part
// of the provenance format.
type Codec string

const (
	CodecNone Codec = "none"
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
)

// ArchiveExtensions are the file name suffixes recognized as packaged
// archives, in detection order.
var ArchiveExtensions = []string{".tar.gz", ".tgz", ".tar.zst", ".tar.lz4", ".tar"}

// CodecForArchive returns the codec implied by an archive file name.
func CodecForArchive(name string) (Codec, error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return CodecGzip, nil
	case strings.HasSuffix(name, ".tar.zst"):
		return CodecZstd, nil
	case strings.HasSuffix(name, ".tar.lz4"):
		return CodecLZ4, nil
	case strings.HasSuffix(name, ".tar"):
		return CodecNone, nil
	}
	return "", fmt.Errorf("archive %q has no recognized extension", name)
}

// openReader wraps the raw archive stream in the codec's decompressor.
func (c Codec) openReader(raw io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecNone:
		return io.NopCloser(raw), nil
	case CodecGzip:
		return gzip.NewReader(raw)
	case CodecZstd:
		decoder, err := zstd.NewReader(raw)
		if err != nil {
			return nil, err
		}
		return decoder.IOReadCloser(), nil
	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(raw)), nil
	}
	return nil, fmt.Errorf("unknown codec %q", c)
}

// ExtractOptions configures the archive extraction preset.
type ExtractOptions struct {
	// Archive names the archive within the source tree, relative to
	// its root. Empty means auto-detect by extension.
	Archive string

	// Workspace and TargetDir pass through to the request.
	Workspace string
	TargetDir string
}

// extractParams is the recorded parameter object for an extraction.
// The builder reads it back from the build context, so a recorded
// transformation replays from its manifest alone.
type extractParams struct {
	Archive string `json:"archive"`
	Codec   Codec  `json:"codec"`
}

// ExtractArchive returns a transformation request that unpacks a tar
// archive from the source tree. The archive is named explicitly or
// auto-detected by extension; the codec follows from the file name
// and is recorded in the transformation parameters.
func ExtractArchive(src transform.Source, opts ExtractOptions) (transform.Request, error) {
	archive := opts.Archive
	if archive == "" {
		found, err := FindByExtension(src.Root, ArchiveExtensions)
		if err != nil {
			return transform.Request{}, err
		}
		archive = found
	}

	codec, err := CodecForArchive(archive)
	if err != nil {
		return transform.Request{}, err
	}

	params, err := json.Marshal(extractParams{Archive: archive, Codec: codec})
	if err != nil {
		return transform.Request{}, fmt.Errorf("encoding extract parameters: %w", err)
	}

	return transform.Request{
		Name:      "extract",
		Source:    src,
		Builder:   transform.BuilderFunc(extractTar),
		Params:    params,
		Workspace: opts.Workspace,
		TargetDir: opts.TargetDir,
	}, nil
}

// extractTar unpacks the archive named in the build parameters into
// the output root. Every entry is confined to the output root:
// absolute paths, escaping paths, and links pointing outside the
// extracted tree are rejected rather than sanitized.
func extractTar(ctx context.Context, build transform.BuildContext) error {
	var params extractParams
	if err := json.Unmarshal(build.Params, &params); err != nil {
		return fmt.Errorf("decoding extract parameters: %w", err)
	}

	archivePath := filepath.Join(build.SourceRoot, filepath.FromSlash(params.Archive))
	raw, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer raw.Close()

	stream, err := params.Codec.openReader(raw)
	if err != nil {
		return fmt.Errorf("opening %s stream: %w", params.Codec, err)
	}
	defer stream.Close()

	reader := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		name := filepath.FromSlash(header.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the extraction root", header.Name)
		}
		target := filepath.Join(build.OutputRoot, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", header.Name, err)
			}

		case tar.TypeReg:
			if err := writeEntry(target, header, reader); err != nil {
				return err
			}

		case tar.TypeSymlink:
			// The link target must stay inside the extracted tree
			// once resolved relative to the entry's directory.
			resolved := filepath.Join(filepath.Dir(name), filepath.FromSlash(header.Linkname))
			if filepath.IsAbs(header.Linkname) || !filepath.IsLocal(resolved) {
				return fmt.Errorf("archive entry %q links outside the extraction root (%q)",
					header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", header.Name, err)
			}
			if err := os.Symlink(filepath.FromSlash(header.Linkname), target); err != nil {
				return fmt.Errorf("creating link %s: %w", header.Name, err)
			}

		case tar.TypeLink:
			linked := filepath.FromSlash(header.Linkname)
			if !filepath.IsLocal(linked) {
				return fmt.Errorf("archive entry %q hard-links outside the extraction root (%q)",
					header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", header.Name, err)
			}
			if err := os.Link(filepath.Join(build.OutputRoot, linked), target); err != nil {
				return fmt.Errorf("creating hard link %s: %w", header.Name, err)
			}

		case tar.TypeXGlobalHeader:
			// Metadata pseudo-entry (git archive emits these).

		default:
			return fmt.Errorf("archive entry %q has unsupported type %q", header.Name, header.Typeflag)
		}
	}
}

// writeEntry writes one regular file from the archive, preserving the
// executable bit.
func writeEntry(target string, header *tar.Header, reader *tar.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", header.Name, err)
	}

	mode := os.FileMode(0o644)
	if header.FileInfo().Mode()&0o111 != 0 {
		mode = 0o755
	}

	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", header.Name, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", header.Name, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", header.Name, err)
	}
	return nil
}
