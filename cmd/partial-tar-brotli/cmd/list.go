package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/partial-tar-brotli/internal/service/packager"
)

// listCmd prints the contents of an archive and verifies them against the manifest.
var listCmd = &cobra.Command{
	Use:          "list <archive>",
	Short:        "List and verify the files stored in an archive",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return packager.List(cmd.Context(), &packager.ListOptions{
			Path:   args[0],
			Stdout: cmd.OutOrStdout(),
		})
	},
}
