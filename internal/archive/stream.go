package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	// DefaultQuality is the brotli quality used when none is configured.
	DefaultQuality = 11
	// DefaultWindowBits is the brotli window size (log2) used when none is configured.
	DefaultWindowBits = 22

	// MinQuality and MaxQuality bound the brotli quality setting.
	MinQuality = 0
	MaxQuality = 11
	// MinWindowBits and MaxWindowBits bound the brotli window setting.
	MinWindowBits = 10
	MaxWindowBits = 24

	// regularFileMode is the tar mode of entries without execute permission.
	regularFileMode = 0o644
	// executableFileMode is the tar mode of entries with any execute bit set.
	executableFileMode = 0o755
)

var (
	// ErrDiverged is returned when the stream is used after Truncate without Reset.
	ErrDiverged = errors.New("stream was truncated and must be reset before appending")
	// ErrFinished is returned when the stream is used after Finish.
	ErrFinished = errors.New("stream is already finished")
	// ErrEmptyName is returned when an entry has no name.
	ErrEmptyName = errors.New("entry name is empty")
	// ErrBadTruncate is returned when truncating beyond the current length.
	ErrBadTruncate = errors.New("truncate position is out of range")
)

// Options configures the brotli encoder of a Stream.
type Options struct {
	// Quality is the brotli compression quality (0..11).
	Quality int
	// WindowBits is the log2 of the brotli sliding window (10..24).
	WindowBits int
}

// Entry is a single regular file written into the tar stream.
type Entry struct {
	// Name is the path of the entry inside the archive.
	Name string
	// Mode is the source file mode; only the execute bits are kept.
	Mode fs.FileMode
	// Data is the complete file content.
	Data []byte
}

// Stream is a tar stream compressed with brotli into an in-memory buffer.
// It is not safe for concurrent use.
type Stream struct {
	// opts are the encoder settings used on every Reset.
	opts Options
	// buf receives the compressed bytes.
	buf *bytes.Buffer
	// encoder is the brotli writer feeding buf.
	encoder *brotli.Writer
	// tw is the tar writer feeding encoder.
	tw *tar.Writer
	// diverged is set once the buffer no longer matches the encoder state.
	diverged bool
	// finished is set once the closing meta-blocks were written.
	finished bool
}

// NewStream creates a stream and emits the brotli stream header.
// A zero WindowBits selects DefaultWindowBits.
func NewStream(opts Options) (*Stream, error) {
	if opts.WindowBits == 0 {
		opts.WindowBits = DefaultWindowBits
	}

	s := &Stream{
		opts: opts,
		buf:  new(bytes.Buffer),
	}

	if err := s.Reset(); err != nil {
		return nil, err
	}

	return s, nil
}

// Reset discards all output and starts a fresh brotli stream.
func (s *Stream) Reset() error {
	s.buf.Reset()
	s.encoder = brotli.NewWriterOptions(s.buf, brotli.WriterOptions{
		Quality: s.opts.Quality,
		LGWin:   s.opts.WindowBits,
	})
	s.tw = tar.NewWriter(s.encoder)
	s.diverged = false
	s.finished = false

	// Flushing an empty encoder writes the stream header and leaves the
	// output byte-aligned, which is the base every measurement starts from.
	if err := s.encoder.Flush(); err != nil {
		return fmt.Errorf("flush brotli header: %w", err)
	}

	return nil
}

// Len returns the number of compressed bytes produced so far.
func (s *Stream) Len() int {
	return s.buf.Len()
}

// Append writes entry into the archive and flushes the encoder.
// It returns the stream length after the flush.
func (s *Stream) Append(entry Entry) (int, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}

	header, err := Header(entry.Name, entry.Mode, int64(len(entry.Data)))
	if err != nil {
		return 0, err
	}

	if err = s.tw.WriteHeader(header); err != nil {
		return 0, fmt.Errorf("write tar header for %s: %w", entry.Name, err)
	}

	if _, err = s.tw.Write(entry.Data); err != nil {
		return 0, fmt.Errorf("write tar data for %s: %w", entry.Name, err)
	}

	// Pads the entry to the tar block size.
	if err = s.tw.Flush(); err != nil {
		return 0, fmt.Errorf("pad tar entry %s: %w", entry.Name, err)
	}

	if err = s.encoder.Flush(); err != nil {
		return 0, fmt.Errorf("flush brotli encoder: %w", err)
	}

	return s.buf.Len(), nil
}

// Truncate cuts the output back to n bytes. n must be a length previously
// returned by Append or Len, so it ends on a flushed meta-block boundary.
// After Truncate only Finish or Reset may be called.
func (s *Stream) Truncate(n int) error {
	if s.finished {
		return ErrFinished
	}

	if n < 0 || n > s.buf.Len() {
		return fmt.Errorf("%w: %d of %d", ErrBadTruncate, n, s.buf.Len())
	}

	if n == s.buf.Len() {
		return nil
	}

	s.buf.Truncate(n)
	s.diverged = true

	return nil
}

// Finish appends tail as raw meta-blocks followed by the last meta-block
// and returns the complete archive. The encoder is not used again, so
// Finish is valid after Truncate.
func (s *Stream) Finish(tail []byte) ([]byte, error) {
	if s.finished {
		return nil, ErrFinished
	}

	s.buf.Write(AppendRawMetaBlocks(nil, tail))
	s.buf.WriteByte(lastEmptyMetaBlock)
	s.finished = true

	return s.buf.Bytes(), nil
}

// usable reports whether the encoder state still matches the buffer.
func (s *Stream) usable() error {
	switch {
	case s.finished:
		return ErrFinished
	case s.diverged:
		return ErrDiverged
	default:
		return nil
	}
}

// Header returns a deterministic tar header for a regular file:
// zero timestamps and ownership, and a mode derived from the execute bits only.
func Header(name string, mode fs.FileMode, size int64) (*tar.Header, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	var perm int64 = regularFileMode
	if mode&0o111 != 0 {
		perm = executableFileMode
	}

	//nolint:exhaustruct // Ownership fields stay empty on purpose.
	return &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     perm,
		Size:     size,
		ModTime:  time.Unix(0, 0),
	}, nil
}

// Tail renders the closing part of a tar archive: the given entries followed
// by the end-of-archive marker. The result is meant for Finish.
func Tail(entries ...Entry) ([]byte, error) {
	var buf bytes.Buffer

	tw := tar.NewWriter(&buf)

	for _, entry := range entries {
		header, err := Header(entry.Name, entry.Mode, int64(len(entry.Data)))
		if err != nil {
			return nil, err
		}

		if err = tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("write tar header for %s: %w", entry.Name, err)
		}

		if _, err = tw.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("write tar data for %s: %w", entry.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar tail: %w", err)
	}

	return buf.Bytes(), nil
}
