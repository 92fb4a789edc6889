package packager

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/partial-tar-brotli/internal/archive"
	"github.com/oshokin/partial-tar-brotli/internal/domain/manifest"
)

// writeArchive stores a finished archive made of entries and returns its path.
func writeArchive(t *testing.T, entries ...archive.Entry) string {
	t.Helper()

	stream, err := archive.NewStream(archive.Options{Quality: 5, WindowBits: 16})
	require.NoError(t, err)

	tail, err := archive.Tail(entries...)
	require.NoError(t, err)

	data, err := stream.Finish(tail)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "archive.tar.br")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

// manifestEntry renders m as the manifest entry.
func manifestEntry(t *testing.T, m *manifest.Manifest) archive.Entry {
	t.Helper()

	data, err := json.Marshal(m)
	require.NoError(t, err)

	return archive.Entry{Name: manifest.Filename, Mode: 0o644, Data: data}
}

// TestList prints included and skipped files.
func TestList(t *testing.T) {
	t.Parallel()

	payload := []byte("payload")

	m := manifest.New(4096)
	m.Include("logs/a.txt", "logs/a.txt", payload)
	m.Skip("logs/b.txt", manifest.ReasonDoesNotFit)

	path := writeArchive(t,
		archive.Entry{Name: "logs/a.txt", Mode: 0o644, Data: payload},
		manifestEntry(t, m),
	)

	var stdout bytes.Buffer

	require.NoError(t, List(context.Background(), &ListOptions{Path: path, Stdout: &stdout}))
	require.Contains(t, stdout.String(), "           7  logs/a.txt\n")
	require.Contains(t, stdout.String(), "     skipped  logs/b.txt (does not fit)\n")
	require.Contains(t, stdout.String(), "1 included, 1 skipped, ")
	require.Contains(t, stdout.String(), " of 4096 bytes used\n")
}

// TestList_Mismatch rejects archives whose entries disagree with the manifest.
func TestList_Mismatch(t *testing.T) {
	t.Parallel()

	m := manifest.New(4096)
	m.Include("a.txt", "a.txt", []byte("original"))

	path := writeArchive(t,
		archive.Entry{Name: "a.txt", Mode: 0o644, Data: []byte("tampered")},
		manifestEntry(t, m),
	)

	err := List(context.Background(), &ListOptions{Path: path, Stdout: &bytes.Buffer{}})
	require.ErrorIs(t, err, ErrManifestMismatch)

	path = writeArchive(t, archive.Entry{Name: "a.txt", Mode: 0o644, Data: []byte("x")})

	err = List(context.Background(), &ListOptions{Path: path, Stdout: &bytes.Buffer{}})
	require.ErrorIs(t, err, ErrNoManifest)
}
