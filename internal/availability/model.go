// Package availability exposes a read-only view of a staff member's working
// hours, breaks, and time off. Staff scheduling itself is owned by other
// systems; the booking engine only queries it.
package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

// ErrStaffNotFound is returned when the staff member does not exist.
var ErrStaffNotFound = errors.New("availability: staff member not found")

// Day is a consistent snapshot of one staff member's availability for a single
// date. It is resolved once per booking request and passed through so that
// conflict checks and slot searches inside one transaction agree on what the
// calendar looked like.
type Day struct {
	StaffID uuid.UUID
	// Date is midnight of the requested day in the staff member's timezone.
	Date time.Time
	// Windows are the open intervals, as UTC instants. Empty for closed days;
	// two entries when a mid-day break splits the shift.
	Windows []timerange.Range
	// TimeOff holds approved absences clamped to this day.
	TimeOff []timerange.Range
}

// Closed reports whether the staff member has no open window on this day.
func (d Day) Closed() bool {
	return len(d.Windows) == 0
}

// IsOpen reports whether r lies entirely inside one working window and does
// not intersect any time off.
func (d Day) IsOpen(r timerange.Range) bool {
	if !r.IsValid() {
		return false
	}
	inWindow := false
	for _, w := range d.Windows {
		if w.Covers(r) {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return false
	}
	for _, off := range d.TimeOff {
		if r.Overlaps(off) {
			return false
		}
	}
	return true
}

// IsTimeOff reports whether the instant falls inside an absence.
func (d Day) IsTimeOff(t time.Time) bool {
	for _, off := range d.TimeOff {
		if off.Contains(t) {
			return true
		}
	}
	return false
}

// Bounds returns the span from the first window's start to the last window's
// end, or a zero range for closed days.
func (d Day) Bounds() timerange.Range {
	if d.Closed() {
		return timerange.Range{}
	}
	return timerange.Range{Start: d.Windows[0].Start, End: d.Windows[len(d.Windows)-1].End}
}

// Store is the query interface the booking engine consumes.
type Store interface {
	// Day resolves the availability snapshot for the staff member on the
	// calendar date given by date's year/month/day in the staff timezone.
	Day(ctx context.Context, staffID uuid.UUID, date time.Time) (Day, error)
	// StaffIDs lists bookable staff members.
	StaffIDs(ctx context.Context) ([]uuid.UUID, error)
}

// shift is one weekday's working-hours template in local wall-clock time.
type shift struct {
	start      time.Duration // offset from local midnight
	end        time.Duration
	breakStart time.Duration // zero when the shift has no break
	breakEnd   time.Duration
}

// windows materializes the template into UTC instants for a local midnight,
// splitting around the break when one is configured.
func (s shift) windows(midnight time.Time) []timerange.Range {
	abs := func(offset time.Duration) time.Time { return midnight.Add(offset).UTC() }
	if s.end <= s.start {
		return nil
	}
	if s.breakEnd > s.breakStart && s.breakStart > s.start && s.breakEnd < s.end {
		return []timerange.Range{
			{Start: abs(s.start), End: abs(s.breakStart)},
			{Start: abs(s.breakEnd), End: abs(s.end)},
		}
	}
	return []timerange.Range{{Start: abs(s.start), End: abs(s.end)}}
}
