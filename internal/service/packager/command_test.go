package packager

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/partial-tar-brotli/internal/config"
	"github.com/oshokin/partial-tar-brotli/internal/repository/output"
)

// newConfig returns a valid configuration writing into dir.
func newConfig(dir string, budget config.Size) *config.Config {
	cfg := config.Default()
	cfg.MaxSize = budget
	cfg.Output = filepath.Join(dir, "report.tar.br")
	cfg.Quality = 5
	cfg.WindowBits = 16

	return cfg
}

// writeInputs creates small JSON files and returns their paths.
func writeInputs(t *testing.T, dir string, names ...string) []string {
	t.Helper()

	paths := make([]string, 0, len(names))

	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(`{"name":"`+name+`"}`), 0o600))

		paths = append(paths, path)
	}

	return paths
}

// TestRun_WritesArchive packs everything and prints the summary.
func TestRun_WritesArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := newConfig(dir, 1<<20)
	cfg.Verbose = true
	files := writeInputs(t, dir, "a.json", "b.json")

	var stdout bytes.Buffer

	err := Run(context.Background(), &Options{
		Config: cfg,
		Files:  files,
		Stdout: &stdout,
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], files[0]+" (used "))
	require.True(t, strings.HasPrefix(lines[1], files[1]+" (used "))
	require.Equal(t, "Done! All 2 files added to archive.", lines[2])

	info, err := os.Stat(cfg.Output)
	require.NoError(t, err)
	require.LessOrEqual(t, info.Size(), int64(cfg.MaxSize))

	var listing bytes.Buffer

	require.NoError(t, List(context.Background(), &ListOptions{Path: cfg.Output, Stdout: &listing}))
	require.Contains(t, listing.String(), "2 included, 0 skipped")
	require.Contains(t, listing.String(), "a.json")
}

// TestRun_ReportsSkips prints one line per left-out file.
func TestRun_ReportsSkips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := newConfig(dir, 1<<20)
	files := writeInputs(t, dir, "a.json")
	files = append(files, filepath.Join(dir, "missing.json"))

	var stdout bytes.Buffer

	require.NoError(t, Run(context.Background(), &Options{Config: cfg, Files: files, Stdout: &stdout}))

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], files[1]+" could not be read: "))
	require.Equal(t, "Done! 1 out of 2 files added (1 skipped)", lines[1])
}

// TestRun_BudgetTooSmall still writes a manifest-only archive and warns.
func TestRun_BudgetTooSmall(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := newConfig(dir, 64)
	files := writeInputs(t, dir, "a.json")

	var stdout bytes.Buffer

	require.NoError(t, Run(context.Background(), &Options{Config: cfg, Files: files, Stdout: &stdout}))
	require.Contains(t, stdout.String(), "Warning: budget of 64 bytes is too small")
	require.Contains(t, stdout.String(), "Done! 0 out of 1 files added (1 skipped)")

	_, err := os.Stat(cfg.Output)
	require.NoError(t, err)
}

// TestRun_Failures leaves no output behind on invalid runs.
func TestRun_Failures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := newConfig(dir, 1<<20)

	err := Run(context.Background(), &Options{Config: cfg, Stdout: &bytes.Buffer{}})
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = os.Stat(cfg.Output)
	require.ErrorIs(t, err, os.ErrNotExist)

	files := writeInputs(t, dir, "a.json")

	err = Run(context.Background(), &Options{Files: files, Stdout: &bytes.Buffer{}})
	require.ErrorIs(t, err, config.ErrMaxSizeRequired)

	require.NoError(t, os.WriteFile(cfg.Output, []byte("previous"), 0o600))

	err = Run(context.Background(), &Options{Config: cfg, Files: files, Stdout: &bytes.Buffer{}})
	require.ErrorIs(t, err, output.ErrExists)

	got, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	require.Equal(t, "previous", string(got))
}

// errDiskFull stands in for a failing write.
var errDiskFull = errors.New("no space left on device")

// failingRepository passes the early check and fails on Save.
type failingRepository struct{}

func (failingRepository) Check(context.Context) error { return nil }

func (failingRepository) Save(context.Context, []byte) error { return errDiskFull }

// TestRun_SaveFailure aborts without a summary and without an output file.
func TestRun_SaveFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := newConfig(dir, 1<<20)
	files := writeInputs(t, dir, "a.json")

	var stdout bytes.Buffer

	err := Run(context.Background(), &Options{
		Config:     cfg,
		Files:      files,
		Stdout:     &stdout,
		Repository: failingRepository{},
	})
	require.ErrorIs(t, err, errDiskFull)
	require.NotContains(t, stdout.String(), "Done!")

	_, err = os.Stat(cfg.Output)
	require.ErrorIs(t, err, os.ErrNotExist)
}
