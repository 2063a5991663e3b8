// Package interval holds the pure time-range tests used by the arbiter.
// All ranges are half-open: the start instant is included, the end instant is not.
package interval

import (
	"errors"
	"time"
)

var ErrEmptyInterval = errors.New("interval end must be after start")

// Window is a half-open [Start, End) range.
type Window struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) (Window, error) {
	if err := Validate(start, end); err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}

// Validate rejects empty and backwards ranges.
func Validate(start, end time.Time) error {
	if !end.After(start) {
		return ErrEmptyInterval
	}
	return nil
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether o lies entirely inside w.
func (w Window) Contains(o Window) bool {
	return !o.Start.Before(w.Start) && !o.End.After(w.End)
}

// Expand widens the window by d on both edges.
func (w Window) Expand(d time.Duration) Window {
	return Window{Start: w.Start.Add(-d), End: w.End.Add(d)}
}

// Overlaps is true iff [aStart,aEnd) and [bStart,bEnd) share at least one instant.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Conflicts reports whether a candidate comes closer than buffer to either edge of an existing range.
// A gap of exactly buffer still conflicts. With no buffer this is plain Overlaps, so back-to-back
// ranges are allowed.
func Conflicts(existingStart, existingEnd, candidateStart, candidateEnd time.Time, buffer time.Duration) bool {
	if buffer <= 0 {
		return Overlaps(existingStart, existingEnd, candidateStart, candidateEnd)
	}
	return !candidateStart.After(existingEnd.Add(buffer)) && !existingStart.After(candidateEnd.Add(buffer))
}

// WithinBuffer is the negation of Conflicts: the candidate keeps its distance from the existing range.
func WithinBuffer(existingStart, existingEnd, candidateStart, candidateEnd time.Time, buffer time.Duration) bool {
	return !Conflicts(existingStart, existingEnd, candidateStart, candidateEnd, buffer)
}

// ConflictsWith is Conflicts over windows.
func (w Window) ConflictsWith(candidate Window, buffer time.Duration) bool {
	return Conflicts(w.Start, w.End, candidate.Start, candidate.End, buffer)
}
