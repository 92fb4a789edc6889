// Package config defines the packing settings and resolves them from, in
// increasing precedence, built-in defaults, an optional YAML file,
// PARTIAL_TAR_BROTLI_* environment variables and command-line flags.
//
// Sizes accept plain byte counts as well as humanized values such as
// "16MiB" or "2 GB".
package config
