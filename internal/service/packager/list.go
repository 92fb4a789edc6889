package packager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/partial-tar-brotli/internal/archive"
	"github.com/oshokin/partial-tar-brotli/internal/domain/manifest"
	"github.com/oshokin/partial-tar-brotli/internal/logger"
)

var (
	// ErrNoManifest is returned when an archive has no manifest entry.
	ErrNoManifest = errors.New("archive has no manifest")
	// ErrManifestMismatch is returned when archive entries disagree with the manifest.
	ErrManifestMismatch = errors.New("archive does not match its manifest")
)

// ListOptions contains inputs for the list entry point.
type ListOptions struct {
	// Path is the archive to inspect.
	Path string
	// Stdout receives the listing (defaults to os.Stdout).
	Stdout io.Writer
}

// List prints the entries of an archive and checks them against its manifest.
func List(ctx context.Context, opts *ListOptions) error {
	ctx = logger.WithName(ctx, "list")

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	data, err := os.ReadFile(filepath.Clean(opts.Path))
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	entries, err := archive.ReadAll(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode archive: %w", err)
	}

	var (
		m     *manifest.Manifest
		files = make([]archive.Entry, 0, len(entries))
	)

	for _, entry := range entries {
		if entry.Name == manifest.Filename {
			if m, err = manifest.Decode(entry.Data); err != nil {
				return err
			}

			continue
		}

		files = append(files, entry)
	}

	if m == nil {
		return fmt.Errorf("%s: %w", opts.Path, ErrNoManifest)
	}

	if err = verify(files, m); err != nil {
		return fmt.Errorf("%s: %w", opts.Path, err)
	}

	for _, entry := range files {
		_, _ = fmt.Fprintf(stdout, "%12d  %s\n", len(entry.Data), entry.Name)
	}

	for _, skipped := range m.Skipped {
		_, _ = fmt.Fprintf(stdout, "%12s  %s (%s)\n", "skipped", skipped.Path, skipped.Reason)
	}

	_, _ = fmt.Fprintf(stdout, "%d included, %d skipped, %d of %d bytes used\n",
		len(m.Included), len(m.Skipped), len(data), m.MaxSize)

	logger.DebugKV(ctx, "Archive verified", "path", opts.Path, "entries", len(files))

	return nil
}

// verify checks that entries and manifest agree in order, size and digest.
func verify(files []archive.Entry, m *manifest.Manifest) error {
	if len(files) != len(m.Included) {
		return fmt.Errorf("%w: %d entries, %d in manifest", ErrManifestMismatch, len(files), len(m.Included))
	}

	for i, entry := range files {
		want := m.Included[i]

		switch {
		case strings.ToValidUTF8(entry.Name, "\uFFFD") != want.Name:
			return fmt.Errorf("%w: entry %d is %s, manifest says %s", ErrManifestMismatch, i, entry.Name, want.Name)
		case int64(len(entry.Data)) != want.Size:
			return fmt.Errorf("%w: %s has %d bytes, manifest says %d", ErrManifestMismatch, entry.Name, len(entry.Data), want.Size)
		case manifest.Digest(entry.Data) != want.BLAKE3:
			return fmt.Errorf("%w: %s digest differs", ErrManifestMismatch, entry.Name)
		}
	}

	return nil
}
