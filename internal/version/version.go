package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "1.0.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// shortCommitLen is the number of SHA characters shown in Full.
const shortCommitLen = 12

//nolint:gochecknoglobals // Build info is read once per process.
var fillFromBuildInfo = sync.OnceFunc(func() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		switch {
		case setting.Key == "vcs.revision" && Commit == "none":
			Commit = setting.Value[:min(len(setting.Value), shortCommitLen)]
		case setting.Key == "vcs.time" && BuildTime == "unknown":
			BuildTime = setting.Value
		}
	}
})

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	fillFromBuildInfo()

	return fmt.Sprintf("partial-tar-brotli %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}
