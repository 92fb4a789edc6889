package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileMode is the permission of written archives.
const DefaultFileMode fs.FileMode = 0o644

// Repository defines persistence operations for finished archives.
type Repository interface {
	Check(ctx context.Context) error
	Save(ctx context.Context, data []byte) error
}

// FileRepository writes an archive to a single path on disk.
type FileRepository struct {
	// path is the destination of the archive.
	path string
	// overwrite allows replacing an existing file.
	overwrite bool
	// mu serializes writes to path.
	mu sync.Mutex
	// write stores data into an open file and closes it.
	write func(file *os.File, data []byte) error
}

var (
	// ErrExists is returned when the destination exists and overwriting is off.
	ErrExists = errors.New("output file already exists")
	// ErrNotRegular is returned when the destination exists and is not a regular file.
	ErrNotRegular = errors.New("output path is not a regular file")
)

// NewFileRepository creates a repository writing to path.
func NewFileRepository(path string, overwrite bool) *FileRepository {
	return &FileRepository{
		path:      filepath.Clean(path),
		overwrite: overwrite,
		write:     writeAndClose,
	}
}

// Path returns the destination path.
func (r *FileRepository) Path() string {
	return r.path
}

// Check fails early when Save is bound to fail: the destination exists and
// may not be replaced, or its directory does not exist.
func (r *FileRepository) Check(_ context.Context) error {
	info, err := os.Stat(r.path)

	switch {
	case err == nil && !info.Mode().IsRegular():
		return fmt.Errorf("%s: %w", r.path, ErrNotRegular)
	case err == nil && !r.overwrite:
		return fmt.Errorf("%s: %w", r.path, ErrExists)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("stat output: %w", err)
	}

	dir, err := os.Stat(filepath.Dir(r.path))
	if err != nil {
		return fmt.Errorf("stat output directory: %w", err)
	}

	if !dir.IsDir() {
		return fmt.Errorf("output directory %s: %w", filepath.Dir(r.path), fs.ErrInvalid)
	}

	return nil
}

// Save writes data to the destination. Without overwrite the file is created
// exclusively; with overwrite a temporary sibling is renamed over it. Either
// way a failed write leaves no file behind.
func (r *FileRepository) Save(_ context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.overwrite {
		return r.replace(data)
	}

	return r.create(data)
}

// create writes a new file with O_EXCL.
func (r *FileRepository) create(data []byte) error {
	file, err := os.OpenFile(r.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, DefaultFileMode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", r.path, ErrExists)
		}

		return fmt.Errorf("create output: %w", err)
	}

	if err = r.write(file, data); err != nil {
		_ = os.Remove(r.path) // Best-effort cleanup.

		return err
	}

	return nil
}

// replace writes a temporary file next to the destination and renames it.
func (r *FileRepository) replace(data []byte) error {
	file, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary output: %w", err)
	}

	tmpPath := file.Name()

	if err = r.write(file, data); err != nil {
		_ = os.Remove(tmpPath) // Best-effort cleanup.

		return err
	}

	if err = os.Chmod(tmpPath, DefaultFileMode); err != nil {
		_ = os.Remove(tmpPath) // Best-effort cleanup.

		return fmt.Errorf("chmod temporary output: %w", err)
	}

	if err = os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath) // Best-effort cleanup.

		return fmt.Errorf("rename output: %w", err)
	}

	return nil
}

// writeAndClose writes, syncs and closes file, reporting the first error.
func writeAndClose(file *os.File, data []byte) error {
	if _, err := file.Write(data); err != nil {
		_ = file.Close()

		return fmt.Errorf("write output: %w", err)
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()

		return fmt.Errorf("sync output: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	return nil
}
