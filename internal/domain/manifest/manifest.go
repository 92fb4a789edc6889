package manifest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/oshokin/partial-tar-brotli/internal/version"
)

// Filename is the tar entry name of the manifest.
const Filename = "partial-tar-brotli-manifest.json"

// Reason explains why a candidate was skipped.
type Reason string

const (
	// ReasonDoesNotFit means the archive would exceed the budget with the candidate.
	ReasonDoesNotFit Reason = "does not fit"
	// ReasonUnreadable means the candidate could not be read.
	ReasonUnreadable Reason = "could not read file"
	// ReasonNotAttempted means packing stopped before the candidate was considered.
	ReasonNotAttempted Reason = "not attempted"
	// ReasonReservedName means the candidate would be stored under the manifest's name.
	ReasonReservedName Reason = "reserved name"
)

// digestHexLen is the length of a hex-encoded 256-bit BLAKE3 digest.
const digestHexLen = 2 * 32

var (
	// ErrTooLarge is returned when the encoded manifest exceeds the reserved length.
	ErrTooLarge = errors.New("manifest exceeds reserved length")
	// ErrUnknownReason is returned when decoding a manifest with an unsupported reason.
	ErrUnknownReason = errors.New("unknown skip reason")
)

// Reasons returns every skip reason in a stable order.
func Reasons() []Reason {
	return []Reason{ReasonDoesNotFit, ReasonUnreadable, ReasonNotAttempted, ReasonReservedName}
}

// Included describes a candidate stored in the archive.
type Included struct {
	// Path is the candidate path exactly as given.
	Path string `json:"path"`
	// Name is the tar entry name the content was stored under.
	Name string `json:"name"`
	// Size is the content length in bytes.
	Size int64 `json:"size"`
	// BLAKE3 is the hex-encoded digest of the content.
	BLAKE3 string `json:"blake3"`
}

// Skipped describes a candidate left out of the archive.
type Skipped struct {
	// Path is the candidate path exactly as given.
	Path string `json:"path"`
	// Reason says why the candidate was left out.
	Reason Reason `json:"reason"`
}

// Manifest is the ordered record of packing decisions.
type Manifest struct {
	// Generator names the tool and version that produced the archive.
	Generator string `json:"generator"`
	// MaxSize is the byte budget the archive was packed for.
	MaxSize uint64 `json:"max_size"`
	// Included lists stored candidates in input order.
	Included []Included `json:"included"`
	// Skipped lists left-out candidates in input order.
	Skipped []Skipped `json:"skipped"`
}

// New returns an empty manifest for the given budget.
func New(maxSize uint64) *Manifest {
	return &Manifest{
		Generator: "partial-tar-brotli " + version.Short(),
		MaxSize:   maxSize,
		Included:  []Included{},
		Skipped:   []Skipped{},
	}
}

// Digest returns the hex-encoded BLAKE3 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// Include records a stored candidate and returns the new record.
func (m *Manifest) Include(path, name string, data []byte) Included {
	entry := Included{
		Path:   path,
		Name:   name,
		Size:   int64(len(data)),
		BLAKE3: Digest(data),
	}

	m.Included = append(m.Included, entry)

	return entry
}

// Skip records a left-out candidate.
// Invalid UTF-8 in path is replaced the way JSON encoding would replace it.
func (m *Manifest) Skip(path string, reason Reason) {
	m.Skipped = append(m.Skipped, Skipped{
		Path:   strings.ToValidUTF8(path, "\uFFFD"),
		Reason: reason,
	})
}

// Total returns the number of recorded candidates.
func (m *Manifest) Total() int {
	return len(m.Included) + len(m.Skipped)
}

// Encode marshals the manifest and pads it with whitespace to exactly size
// bytes. The padding keeps the document valid JSON.
func (m *Manifest) Encode(size int) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	if len(data) > size {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(data), size)
	}

	if len(data) == size {
		return data, nil
	}

	padded := make([]byte, size)
	copy(padded, data)

	for i := len(data); i < size-1; i++ {
		padded[i] = ' '
	}

	padded[size-1] = '\n'

	return padded, nil
}

// Decode parses a manifest read back from an archive.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(bytes.TrimSpace(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	for _, skipped := range m.Skipped {
		if !isKnownReason(skipped.Reason) {
			return nil, fmt.Errorf("%w: %q for %s", ErrUnknownReason, skipped.Reason, skipped.Path)
		}
	}

	return &m, nil
}

// Bound returns the largest encoded length a manifest for these candidates
// can reach, whatever the decisions and the budget are. entryName maps a
// candidate path to its tar entry name.
func Bound(paths []string, entryName func(string) string) (int, error) {
	envelope, err := json.Marshal(New(math.MaxUint64))
	if err != nil {
		return 0, fmt.Errorf("marshal manifest envelope: %w", err)
	}

	total := len(envelope)

	for _, path := range paths {
		worst, err := entryBound(path, entryName(path))
		if err != nil {
			return 0, err
		}

		// One separator per element is an overestimate by one per list.
		total += worst + 1
	}

	return total, nil
}

// entryBound is the longest array element a single candidate can produce.
func entryBound(path, name string) (int, error) {
	included, err := json.Marshal(Included{
		Path:   path,
		Name:   name,
		Size:   math.MaxInt64,
		BLAKE3: strings.Repeat("0", digestHexLen),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal included bound for %s: %w", path, err)
	}

	worst := len(included)

	for _, reason := range Reasons() {
		skipped, err := json.Marshal(Skipped{Path: path, Reason: reason})
		if err != nil {
			return 0, fmt.Errorf("marshal skipped bound for %s: %w", path, err)
		}

		worst = max(worst, len(skipped))
	}

	return worst, nil
}

func isKnownReason(reason Reason) bool {
	return slices.Contains(Reasons(), reason)
}
