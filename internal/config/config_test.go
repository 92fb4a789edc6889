package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// newFlags mirrors the flag set registered by the CLI.
func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(KeyMaxSize, "", "")
	flags.String(KeyOutput, "", "")
	flags.Bool(KeyVerbose, false, "")
	flags.Bool(KeyStopAtFirstSkip, false, "")
	flags.Bool(KeyForce, false, "")
	flags.Int(KeyQuality, 11, "")
	flags.Int(KeyWindow, 22, "")
	flags.String(KeyLogLevel, DefaultLogLevel, "")
	flags.Bool(KeyProgress, false, "")
	flags.String(KeyConfig, "", "")

	return flags
}

// TestValidate checks required fields and ranges.
func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.ErrorIs(t, Validate(cfg), ErrMaxSizeRequired)

	cfg.MaxSize = 1024
	require.ErrorIs(t, Validate(cfg), ErrOutputRequired)

	cfg.Output = "out.tar.br"
	require.NoError(t, Validate(cfg))

	cfg.Quality = 12
	err := Validate(cfg)
	require.ErrorIs(t, err, ErrQualityOutOfRange)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg.Quality = 0
	cfg.WindowBits = 9
	require.ErrorIs(t, Validate(cfg), ErrWindowOutOfRange)

	cfg.WindowBits = 24
	cfg.LogLevel = "chatty"
	require.ErrorIs(t, Validate(cfg), ErrUnknownLogLevel)
}

// TestParseSize accepts plain and humanized sizes.
func TestParseSize(t *testing.T) {
	t.Parallel()

	cases := map[string]Size{
		"16777216": 16777216,
		"16MiB":    16 << 20,
		"2 kB":     2000,
		" 512 ":    512,
	}
	for input, want := range cases {
		got, err := ParseSize(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	_, err := ParseSize("-5")
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ParseSize("lots")
	require.ErrorIs(t, err, ErrInvalidConfig)

	require.Equal(t, "16 MiB", Size(16<<20).String())
}

// TestLoadFile reads YAML on top of defaults.
func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_size: 16MiB\noutput: out.tar.br\nquality: 5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Size(16<<20), cfg.MaxSize)
	require.Equal(t, "out.tar.br", cfg.Output)
	require.Equal(t, 5, cfg.Quality)
	require.Equal(t, Default().WindowBits, cfg.WindowBits)

	require.NoError(t, os.WriteFile(path, []byte("max_size: [1, 2]\n"), 0o600))

	_, err = Load(path)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// TestResolvePrecedence checks flag > env > file > defaults.
func TestResolvePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_size: 1000\noutput: from-file.tar.br\nquality: 3\nwindow: 18\n"), 0o600))

	t.Setenv("PARTIAL_TAR_BROTLI_OUTPUT", "from-env.tar.br")
	t.Setenv("PARTIAL_TAR_BROTLI_WINDOW", "20")

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--config", path, "--window", "16"}))

	v, err := NewViper(flags)
	require.NoError(t, err)

	cfg, err := Resolve(v)
	require.NoError(t, err)

	// File.
	require.Equal(t, Size(1000), cfg.MaxSize)
	require.Equal(t, 3, cfg.Quality)
	// Environment beats file.
	require.Equal(t, "from-env.tar.br", cfg.Output)
	// Flag beats environment.
	require.Equal(t, 16, cfg.WindowBits)
	// Untouched flag defaults do not override anything.
	require.Equal(t, DefaultLogLevel, cfg.LogLevel)
	require.Equal(t, 16, cfg.EncoderOptions().WindowBits)
}

// TestResolveMissingMaxSize fails before any I/O.
func TestResolveMissingMaxSize(t *testing.T) {
	t.Parallel()

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--output", "x.tar.br"}))

	v, err := NewViper(flags)
	require.NoError(t, err)

	_, err = Resolve(v)
	require.ErrorIs(t, err, ErrMaxSizeRequired)
}
