// Package timerange provides half-open [start, end) interval math on absolute
// instants. All comparisons happen in UTC; wall-clock conversion is the
// availability store's job.
package timerange

import (
	"fmt"
	"sort"
	"time"
)

// Range is a half-open interval [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds a range and normalizes both instants to UTC.
func New(start, end time.Time) Range {
	return Range{Start: start.UTC(), End: end.UTC()}
}

// FromDuration builds a range covering [start, start+d).
func FromDuration(start time.Time, d time.Duration) Range {
	return New(start, start.Add(d))
}

// IsZero reports whether the range is the zero value.
func (r Range) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// IsValid reports whether End is strictly after Start.
func (r Range) IsValid() bool {
	return r.End.After(r.Start)
}

// Duration returns End - Start.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Overlaps reports whether r and other share any instant. Ranges that merely
// touch (one's end equals the other's start) do not overlap.
func (r Range) Overlaps(other Range) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Expand returns the range with its trailing edge pushed out by buffer.
// A non-positive buffer returns the range unchanged.
func (r Range) Expand(buffer time.Duration) Range {
	if buffer <= 0 {
		return r
	}
	return Range{Start: r.Start, End: r.End.Add(buffer)}
}

// Contains reports whether t falls inside [Start, End).
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Covers reports whether other lies entirely within r.
func (r Range) Covers(other Range) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Clamp trims r to the bounds, returning a zero range when they don't intersect.
func (r Range) Clamp(bounds Range) Range {
	start, end := r.Start, r.End
	if start.Before(bounds.Start) {
		start = bounds.Start
	}
	if end.After(bounds.End) {
		end = bounds.End
	}
	if !end.After(start) {
		return Range{}
	}
	return Range{Start: start, End: end}
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}

// SortByStart orders ranges by start time in place.
func SortByStart(ranges []Range) {
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Start.Before(ranges[j].Start)
	})
}

// Subtract removes every busy range from r and returns the remaining gaps in
// chronological order. Busy ranges may be unsorted or overlapping; a single
// linear sweep over the sorted copy produces the gaps.
func (r Range) Subtract(busy []Range) []Range {
	if !r.IsValid() {
		return nil
	}
	clamped := make([]Range, 0, len(busy))
	for _, b := range busy {
		if c := b.Clamp(r); c.IsValid() {
			clamped = append(clamped, c)
		}
	}
	SortByStart(clamped)

	var gaps []Range
	cursor := r.Start
	for _, b := range clamped {
		if b.Start.After(cursor) {
			gaps = append(gaps, Range{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(r.End) {
		gaps = append(gaps, Range{Start: cursor, End: r.End})
	}
	return gaps
}

// Merge collapses overlapping or touching ranges into a minimal sorted set.
func Merge(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	SortByStart(sorted)

	merged := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !r.Start.After(last.End) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
