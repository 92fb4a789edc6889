package archive

import (
	"path/filepath"
	"strings"
)

// EntryName turns a path given on the command line into a tar entry name.
// Normalization is lexical: separators become slashes, empty and "." components
// are dropped, ".." removes the previous component and never climbs above the
// root, and a leading root or volume name is dropped. The result is stable
// under repeated normalization. It is empty when nothing but root remains.
func EntryName(path string) string {
	path = path[len(filepath.VolumeName(path)):]
	path = filepath.ToSlash(path)

	parts := make([]string, 0, strings.Count(path, "/")+1)

	for part := range strings.SplitSeq(path, "/") {
		switch part {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, part)
		}
	}

	return strings.Join(parts, "/")
}
