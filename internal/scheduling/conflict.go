// Package scheduling implements conflict detection and free-slot search over
// availability snapshots. All functions are pure: callers fetch the booked
// intervals and the availability day, then evaluate here.
package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/mariobeauty/salon-scheduling/internal/availability"
	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

// Booked is an existing appointment's interval as seen by the detector.
type Booked struct {
	ID     uuid.UUID
	Range  timerange.Range
	Buffer time.Duration
}

// BufferedRange returns the interval expanded by the appointment's own
// trailing buffer.
func (b Booked) BufferedRange() timerange.Range {
	return b.Range.Expand(b.Buffer)
}

// Result is the outcome of a conflict check.
type Result struct {
	OK             bool
	OutOfHours     bool
	ConflictingIDs []uuid.UUID
}

// CheckConflict decides whether candidate can be booked on the given day.
// The check is buffer-symmetric: the candidate is expanded by its service's
// trailing buffer and every booked interval by its own, so two concurrent
// inserts evaluate the same pair of expanded intervals regardless of order.
// excludeID skips one appointment, used when re-validating a reschedule.
func CheckConflict(day availability.Day, candidate timerange.Range, buffer time.Duration, booked []Booked, excludeID uuid.UUID) Result {
	if !day.IsOpen(candidate) {
		return Result{OutOfHours: true}
	}

	expanded := candidate.Expand(buffer)
	var conflicting []uuid.UUID
	for _, b := range booked {
		if excludeID != uuid.Nil && b.ID == excludeID {
			continue
		}
		if expanded.Overlaps(b.BufferedRange()) {
			conflicting = append(conflicting, b.ID)
		}
	}
	if len(conflicting) > 0 {
		return Result{ConflictingIDs: conflicting}
	}
	return Result{OK: true}
}

// ScanWindow returns the range a store should load booked intervals for when
// checking the given day: the day's bounds padded by maxBuffer on both sides,
// so a late appointment from the previous evening whose buffer spills into
// this day still enters the comparison set.
func ScanWindow(day availability.Day, maxBuffer time.Duration) timerange.Range {
	bounds := day.Bounds()
	if !bounds.IsValid() {
		return bounds
	}
	return timerange.Range{Start: bounds.Start.Add(-maxBuffer), End: bounds.End.Add(maxBuffer)}
}
