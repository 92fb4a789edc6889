package packer

import (
	"fmt"

	"github.com/oshokin/partial-tar-brotli/internal/domain/manifest"
)

// Decision is the outcome for a single candidate.
type Decision struct {
	// Path is the candidate path as given.
	Path string
	// Included is true when the candidate was stored.
	Included bool
	// Reason says why a skipped candidate was left out.
	Reason manifest.Reason
	// Err is the read error of an unreadable candidate.
	Err error
	// Used is the number of compressed bytes an included candidate added.
	Used int
	// Projected is the archive length with this candidate, manifest included.
	// It is zero for candidates that were never appended.
	Projected int
}

// Message returns the line reported to the user for a skipped candidate,
// or an empty string when the decision is reported silently.
func (d Decision) Message() string {
	switch {
	case d.Included:
		return ""
	case d.Reason == manifest.ReasonDoesNotFit:
		return fmt.Sprintf("%s does not fit. Archive would be %d bytes.", d.Path, d.Projected)
	case d.Reason == manifest.ReasonUnreadable:
		return fmt.Sprintf("%s could not be read: %v", d.Path, d.Err)
	case d.Reason == manifest.ReasonReservedName:
		return fmt.Sprintf("%s is named like the manifest and was skipped.", d.Path)
	default:
		return ""
	}
}

// VerboseMessage returns the per-file usage line of an included candidate.
func (d Decision) VerboseMessage() string {
	if !d.Included {
		return ""
	}

	return fmt.Sprintf("%s (used %d bytes)", d.Path, d.Used)
}

// Report summarizes a packing run.
type Report struct {
	// Total is the number of candidates.
	Total int
	// Included is the number of stored candidates.
	Included int
	// Skipped is the number of left-out candidates.
	Skipped int
	// Decisions holds every decision in input order.
	Decisions []Decision
	// Budget is the maximum archive length.
	Budget uint64
	// ArchiveSize is the final archive length.
	ArchiveSize int
	// BudgetTooSmall is set when the manifest alone exceeds the budget.
	BudgetTooSmall bool
}

func (r *Report) add(decision Decision) {
	r.Decisions = append(r.Decisions, decision)

	if decision.Included {
		r.Included++
	} else {
		r.Skipped++
	}
}

// FirstSkip returns the first candidate rejected for not fitting.
func (r *Report) FirstSkip() (Decision, bool) {
	for _, decision := range r.Decisions {
		if decision.Reason == manifest.ReasonDoesNotFit {
			return decision, true
		}
	}

	return Decision{}, false
}

// Summary returns the final line reported to the user.
func (r *Report) Summary() string {
	if r.Skipped == 0 {
		return fmt.Sprintf("Done! All %d files added to archive.", r.Included)
	}

	return fmt.Sprintf("Done! %d out of %d files added (%d skipped)", r.Included, r.Total, r.Skipped)
}

// Warning returns a line explaining a manifest-only archive, or an empty string.
func (r *Report) Warning() string {
	if !r.BudgetTooSmall {
		return ""
	}

	return fmt.Sprintf(
		"Warning: budget of %d bytes is too small, archive contains only the manifest (%d bytes).",
		r.Budget, r.ArchiveSize,
	)
}
