package scheduler

import (
	"errors"
	"time"
)

// ErrInvalidRange indicates a range whose start does not precede its end.
var ErrInvalidRange = errors.New("scheduler: range start must be before end")

// TimeRange is the slot a task occupies: an ordered pair of instants.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// NewTimeRange validates the From < To invariant at construction so that
// inverted or zero-length ranges never reach the detector.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	if !from.Before(to) {
		return TimeRange{}, ErrInvalidRange
	}
	return TimeRange{From: from, To: to}, nil
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// OverlapResult reports whether a candidate range conflicts with its
// neighbors. LeftBorder and RightBorder are advisory bounding instants a
// caller can use to suggest a free sub-range; either may be nil even when
// IsOverlap is true (full containment sets neither).
type OverlapResult struct {
	IsOverlap   bool
	LeftBorder  *time.Time
	RightBorder *time.Time
}

// CheckOverlap evaluates the candidate against the ranges already occupying
// the same day. Day scoping is the caller's responsibility. The function is
// pure: it never retains or mutates its inputs.
//
// For each existing range three conditions accumulate independently:
//
//  1. an earlier-ending neighbor whose end falls strictly inside the
//     candidate marks a start conflict; the deepest such end (the maximum)
//     becomes LeftBorder.
//  2. a neighbor starting at or after the candidate's start and strictly
//     before its end marks an end conflict; the maximum such start becomes
//     RightBorder. The maximum here mirrors the left rule rather than
//     picking the nearest intrusion; existing callers depend on this
//     selection, so it is kept as is.
//  3. a neighbor that entirely swallows the candidate marks both conflicts
//     without touching the borders.
//
// Crossed borders are reconciled afterwards by clamping RightBorder to the
// candidate's end. Neighbors that merely touch the candidate never conflict.
func CheckOverlap(candidate TimeRange, existing []TimeRange) OverlapResult {
	var (
		leftBorder  *time.Time
		rightBorder *time.Time
		startHit    bool
		endHit      bool
	)

	for _, r := range existing {
		if r.To.Before(candidate.To) &&
			(leftBorder == nil || r.To.After(*leftBorder)) &&
			r.To.After(candidate.From) {
			end := r.To
			leftBorder = &end
			startHit = true
		}

		if !r.From.Before(candidate.From) &&
			(rightBorder == nil || r.From.After(*rightBorder)) &&
			r.From.Before(candidate.To) {
			start := r.From
			rightBorder = &start
			endHit = true
		}

		if candidate.From.After(r.From) && candidate.To.Before(r.To) {
			startHit = true
			endHit = true
		}
	}

	if (leftBorder != nil && rightBorder != nil && leftBorder.After(*rightBorder)) ||
		(rightBorder != nil && rightBorder.After(candidate.To)) {
		clamped := candidate.To
		rightBorder = &clamped
	}

	return OverlapResult{
		IsOverlap:   startHit || endHit,
		LeftBorder:  leftBorder,
		RightBorder: rightBorder,
	}
}
