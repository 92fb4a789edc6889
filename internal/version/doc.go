// Package version exposes build metadata for partial-tar-brotli.
//
// Version, Commit and BuildTime can be injected with -ldflags; when they are
// not, Commit and BuildTime fall back to the VCS stamp the Go toolchain
// embeds in the binary. The version string is also written into every
// archive manifest.
package version
