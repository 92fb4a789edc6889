package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// ReadAll decodes a brotli-compressed tar stream and returns its regular
// file entries in archive order.
func ReadAll(r io.Reader) ([]Entry, error) {
	tr := tar.NewReader(brotli.NewReader(r))

	var entries []Entry

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}

		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read tar entry %s: %w", header.Name, err)
		}

		entries = append(entries, Entry{
			Name: header.Name,
			Mode: header.FileInfo().Mode(),
			Data: data,
		})
	}
}
