package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/partial-tar-brotli/internal/archive"
	"github.com/oshokin/partial-tar-brotli/internal/config"
	"github.com/oshokin/partial-tar-brotli/internal/logger"
	"github.com/oshokin/partial-tar-brotli/internal/service/packager"
	"github.com/oshokin/partial-tar-brotli/internal/version"
)

// rootCmd packs the files given as arguments into a size-limited archive.
var rootCmd = &cobra.Command{
	Use:   "partial-tar-brotli [flags] <files...>",
	Short: "Pack as many files as fit into a size-limited .tar.br archive",
	Long: "Packs the given files, in order, into a brotli-compressed tar archive no larger\n" +
		"than --max-size bytes. Files that do not fit are skipped and recorded in the\n" +
		"partial-tar-brotli-manifest.json entry stored at the end of the archive.",
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}

		options := &packager.Options{
			Config: cfg,
			Files:  args,
			Stdout: cmd.OutOrStdout(),
			Stderr: cmd.ErrOrStderr(),
		}

		return packager.Run(ctx, options)
	},
}

// resolveConfig merges the config file, environment and flags and applies the log level.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return nil, err
	}

	cfg, err := config.Resolve(v)
	if err != nil {
		return nil, err
	}

	level, _ := logger.ParseLogLevel(cfg.LogLevel) // Validated by Resolve.
	logger.SetLevel(level)

	return cfg, nil
}

// Execute runs the partial-tar-brotli CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()
	flags.StringP(config.KeyMaxSize, "m", "", "maximum archive size in bytes, e.g. 16777216 or 16MiB (required)")
	flags.StringP(config.KeyOutput, "o", "", "path of the archive to create (required)")
	flags.BoolP(config.KeyVerbose, "v", false, "print the bytes used by every included file")
	flags.Bool(config.KeyStopAtFirstSkip, false, "stop at the first file that does not fit")
	flags.BoolP(config.KeyForce, "f", false, "overwrite the output file if it exists")
	flags.Int(config.KeyQuality, archive.DefaultQuality, "brotli quality (0-11)")
	flags.Int(config.KeyWindow, archive.DefaultWindowBits, "brotli window size as log2 (10-24)")
	flags.String(config.KeyLogLevel, config.DefaultLogLevel, "diagnostics level on stderr: debug, info, warn or error")
	flags.Bool(config.KeyProgress, false, "draw a progress bar on stderr")
	flags.StringP(config.KeyConfig, "c", "", "path to a YAML configuration file")

	rootCmd.AddCommand(listCmd)
}
