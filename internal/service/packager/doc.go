// Package packager runs the partial-tar-brotli workflows behind the CLI.
//
// Run validates the configuration, checks the output destination, packs the
// candidates that fit the budget, writes the archive and prints the report.
// List decodes an existing archive, verifies every entry against the
// embedded manifest and prints its contents.
package packager
