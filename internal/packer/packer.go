package packer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/partial-tar-brotli/internal/archive"
	"github.com/oshokin/partial-tar-brotli/internal/domain/manifest"
	"github.com/oshokin/partial-tar-brotli/internal/logger"
)

var (
	// ErrNoCandidates is returned when the candidate list is empty.
	ErrNoCandidates = errors.New("no input files given")
	// ErrZeroBudget is returned when the budget is zero.
	ErrZeroBudget = errors.New("maximum size must be positive")
	// ErrInputChanged is returned when a committed file changes while packing.
	ErrInputChanged = errors.New("input file changed during packing")
	// ErrSizeMismatch is returned when the finished archive length differs from the projection.
	ErrSizeMismatch = errors.New("archive length differs from projected length")

	// errNotRegular is recorded for candidates that are not regular files.
	errNotRegular = errors.New("not a regular file")
	// errInvalidUTF8 is recorded for paths JSON cannot carry byte for byte.
	errInvalidUTF8 = errors.New("path is not valid UTF-8")
)

// manifestMode is the tar mode of the manifest entry.
const manifestMode fs.FileMode = 0o644

// Config controls a packing run.
type Config struct {
	// Budget is the maximum archive length in bytes.
	Budget uint64
	// Encoder holds the brotli settings.
	Encoder archive.Options
	// StopAtFirstSkip ends packing at the first candidate that does not fit;
	// the remaining ones are recorded as not attempted.
	StopAtFirstSkip bool
	// OnDecision, if set, is called after every decision, in input order.
	OnDecision func(Decision)
}

// Result is the outcome of Pack.
type Result struct {
	// Archive is the complete brotli-compressed tar archive.
	Archive []byte
	// Manifest is the record embedded in the archive.
	Manifest *manifest.Manifest
	// Report summarizes the run.
	Report *Report
}

// committedEntry is what a rebuild needs to reproduce an accepted entry.
type committedEntry struct {
	path   string
	name   string
	mode   fs.FileMode
	digest string
}

// packer holds the state of a single run.
type packer struct {
	// cfg is the run configuration.
	cfg Config
	// stream is the live archive stream.
	stream *archive.Stream
	// manifest records decisions.
	manifest *manifest.Manifest
	// manifestLen is the reserved, padded manifest length.
	manifestLen int
	// finishCost is the exact number of bytes finishing the archive adds.
	finishCost int
	// committed is the stream length after the last accepted entry.
	committed int
	// entries are the accepted entries in order.
	entries []committedEntry
	// stopped is set in StopAtFirstSkip mode after the first rejection.
	stopped bool
	// report accumulates decisions.
	report *Report
}

// Pack packs the candidates that fit into an archive no longer than
// cfg.Budget. Skipped candidates are not errors; only invalid input,
// encoder failures, cancellation and files changing under a rebuild are.
// If even the manifest alone exceeds the budget, the result holds a
// manifest-only archive and Report.BudgetTooSmall is set.
func Pack(ctx context.Context, candidates []string, cfg Config) (*Result, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	if cfg.Budget == 0 {
		return nil, ErrZeroBudget
	}

	p, err := newPacker(candidates, cfg)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Reserved space for the manifest",
		"manifest_bytes", p.manifestLen,
		"finish_bytes", p.finishCost,
		"base_bytes", p.committed)

	for i, path := range candidates {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		if p.stopped {
			p.skip(ctx, path, manifest.ReasonNotAttempted, nil, 0)

			continue
		}

		if err = p.consider(ctx, path, i < len(candidates)-1); err != nil {
			return nil, err
		}
	}

	out, err := p.finish()
	if err != nil {
		return nil, err
	}

	p.report.ArchiveSize = len(out)
	p.report.BudgetTooSmall = uint64(len(out)) > cfg.Budget

	return &Result{
		Archive:  out,
		Manifest: p.manifest,
		Report:   p.report,
	}, nil
}

func newPacker(candidates []string, cfg Config) (*packer, error) {
	stream, err := archive.NewStream(cfg.Encoder)
	if err != nil {
		return nil, fmt.Errorf("create archive stream: %w", err)
	}

	manifestLen, err := manifest.Bound(candidates, archive.EntryName)
	if err != nil {
		return nil, err
	}

	tail, err := manifestTail(make([]byte, manifestLen))
	if err != nil {
		return nil, err
	}

	return &packer{
		cfg:         cfg,
		stream:      stream,
		manifest:    manifest.New(cfg.Budget),
		manifestLen: manifestLen,
		finishCost:  archive.FinishedLen(len(tail)),
		committed:   stream.Len(),
		report: &Report{
			Total:  len(candidates),
			Budget: cfg.Budget,
		},
	}, nil
}

// consider decides on a single candidate.
func (p *packer) consider(ctx context.Context, path string, hasMore bool) error {
	name := archive.EntryName(path)

	switch {
	case name == "":
		p.skip(ctx, path, manifest.ReasonUnreadable, fmt.Errorf("%s: %w", path, archive.ErrEmptyName), 0)

		return nil
	case !utf8.ValidString(path):
		p.skip(ctx, path, manifest.ReasonUnreadable, fmt.Errorf("%q: %w", path, errInvalidUTF8), 0)

		return nil
	case name == manifest.Filename:
		p.skip(ctx, path, manifest.ReasonReservedName, nil, 0)

		return nil
	}

	data, mode, err := readCandidate(path)
	if err != nil {
		p.skip(ctx, path, manifest.ReasonUnreadable, err, 0)

		return nil
	}

	pos, err := p.stream.Append(archive.Entry{Name: name, Mode: mode, Data: data})
	if err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}

	projected := pos + p.finishCost
	if uint64(projected) > p.cfg.Budget {
		p.skip(ctx, path, manifest.ReasonDoesNotFit, nil, projected)

		return p.rollback(ctx, hasMore)
	}

	used := pos - p.committed
	p.committed = pos

	entry := p.manifest.Include(path, name, data)
	p.entries = append(p.entries, committedEntry{
		path:   path,
		name:   name,
		mode:   mode,
		digest: entry.BLAKE3,
	})

	logger.DebugKV(ctx, "Candidate included",
		"path", path,
		"used", humanize.IBytes(uint64(used)),
		"archive", humanize.IBytes(uint64(projected)))

	p.decide(Decision{
		Path:      path,
		Included:  true,
		Used:      used,
		Projected: projected,
	})

	return nil
}

// rollback restores the stream to the last committed entry.
func (p *packer) rollback(ctx context.Context, hasMore bool) error {
	if p.cfg.StopAtFirstSkip {
		p.stopped = true
	}

	// Nothing will be appended any more, so cutting the buffer is enough.
	if p.stopped || !hasMore {
		return p.stream.Truncate(p.committed)
	}

	return p.rebuild(ctx)
}

// rebuild re-encodes the committed entries into a fresh stream. The encoder
// is deterministic, so the result matches the committed length byte for byte.
func (p *packer) rebuild(ctx context.Context) error {
	logger.DebugKV(ctx, "Rebuilding archive stream", "entries", len(p.entries))

	if err := p.stream.Reset(); err != nil {
		return fmt.Errorf("reset archive stream: %w", err)
	}

	for _, entry := range p.entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, _, err := readCandidate(entry.path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInputChanged, err)
		}

		if manifest.Digest(data) != entry.digest {
			return fmt.Errorf("%w: %s", ErrInputChanged, entry.path)
		}

		if _, err = p.stream.Append(archive.Entry{Name: entry.name, Mode: entry.mode, Data: data}); err != nil {
			return fmt.Errorf("append %s: %w", entry.path, err)
		}
	}

	if p.stream.Len() != p.committed {
		return fmt.Errorf("%w: rebuilt %d bytes, committed %d", ErrSizeMismatch, p.stream.Len(), p.committed)
	}

	return nil
}

// finish cuts the stream to the last committed entry and appends the manifest.
func (p *packer) finish() ([]byte, error) {
	if err := p.stream.Truncate(p.committed); err != nil {
		return nil, fmt.Errorf("truncate archive stream: %w", err)
	}

	data, err := p.manifest.Encode(p.manifestLen)
	if err != nil {
		return nil, err
	}

	tail, err := manifestTail(data)
	if err != nil {
		return nil, err
	}

	out, err := p.stream.Finish(tail)
	if err != nil {
		return nil, fmt.Errorf("finish archive stream: %w", err)
	}

	if len(out) != p.committed+p.finishCost {
		return nil, fmt.Errorf("%w: %d != %d", ErrSizeMismatch, len(out), p.committed+p.finishCost)
	}

	return out, nil
}

// skip records a left-out candidate.
func (p *packer) skip(ctx context.Context, path string, reason manifest.Reason, cause error, projected int) {
	p.manifest.Skip(path, reason)

	logger.DebugKV(ctx, "Candidate skipped", "path", path, "reason", reason, "error", cause)

	p.decide(Decision{
		Path:      path,
		Reason:    reason,
		Err:       cause,
		Projected: projected,
	})
}

func (p *packer) decide(decision Decision) {
	p.report.add(decision)

	if p.cfg.OnDecision != nil {
		p.cfg.OnDecision(decision)
	}
}

// manifestTail renders the manifest entry and the tar end-of-archive marker.
func manifestTail(data []byte) ([]byte, error) {
	tail, err := archive.Tail(archive.Entry{
		Name: manifest.Filename,
		Mode: manifestMode,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("render manifest entry: %w", err)
	}

	return tail, nil
}

// readCandidate reads a regular file fully into memory.
func readCandidate(path string) ([]byte, fs.FileMode, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, 0, err
	}

	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("%s: %w", path, errNotRegular)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, 0, err
	}

	return data, info.Mode(), nil
}
