package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/partial-tar-brotli/internal/config"
)

// TestRootCommand packs a file, then lists the result.
// rootCmd is shared, so the subtests run sequentially.
func TestRootCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "metrics.json")
	output := filepath.Join(dir, "metrics.tar.br")
	require.NoError(t, os.WriteFile(input, []byte(`{"p99":"120ms"}`), 0o600))

	var stdout, stderr bytes.Buffer

	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)

	t.Run("pack", func(t *testing.T) {
		rootCmd.SetArgs([]string{"--max-size", "64KiB", "--output", output, "--quality", "5", input})
		require.NoError(t, rootCmd.Execute())
		require.Equal(t, "Done! All 1 files added to archive.\n", stdout.String())
	})

	t.Run("list", func(t *testing.T) {
		stdout.Reset()
		rootCmd.SetArgs([]string{"list", output})
		require.NoError(t, rootCmd.Execute())
		require.Contains(t, stdout.String(), "1 included, 0 skipped")
	})

	t.Run("missing max size", func(t *testing.T) {
		// Flags keep their values between executions; reset the one under test.
		require.NoError(t, rootCmd.Flags().Set(config.KeyMaxSize, "0"))
		rootCmd.SetArgs([]string{"--output", filepath.Join(dir, "other.tar.br"), input})
		require.ErrorIs(t, rootCmd.Execute(), config.ErrMaxSizeRequired)
	})
}
