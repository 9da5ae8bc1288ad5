package scheduling

import (
	"iter"
	"time"

	"github.com/mariobeauty/salon-scheduling/internal/availability"
	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

// DefaultGranularity is the slot step used when the caller passes zero.
const DefaultGranularity = 15 * time.Minute

// FreeSlots enumerates candidate start times for a service of the given
// duration and trailing buffer on one day. The sequence is lazy and
// restartable: ranging over it twice yields the same starts, and every
// emitted start passes CheckConflict for the same inputs.
//
// The service itself must finish inside a working window; its trailing buffer
// may run past closing or into time off, but never into another booking's
// buffered interval.
func FreeSlots(day availability.Day, booked []Booked, duration, buffer, granularity time.Duration) iter.Seq[time.Time] {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	return func(yield func(time.Time) bool) {
		if duration <= 0 {
			return
		}
		busy := make([]timerange.Range, 0, len(booked)+len(day.TimeOff))
		for _, b := range booked {
			busy = append(busy, b.BufferedRange())
		}
		busy = append(busy, day.TimeOff...)

		for _, window := range day.Windows {
			for _, gap := range window.Subtract(busy) {
				for start := gap.Start; !start.Add(duration).After(gap.End); start = start.Add(granularity) {
					if buffer > 0 && tailCollides(timerange.FromDuration(start, duration+buffer), booked) {
						// the colliding booking starts at or after the gap
						// end, so every later start in this gap collides too
						break
					}
					if !yield(start) {
						return
					}
				}
			}
		}
	}
}

// tailCollides reports whether the buffered candidate interval overlaps any
// booked buffered interval.
func tailCollides(buffered timerange.Range, booked []Booked) bool {
	for _, b := range booked {
		if buffered.Overlaps(b.BufferedRange()) {
			return true
		}
	}
	return false
}

// FirstAvailable returns the earliest start in the sequence, or false when
// the day is fully booked.
func FirstAvailable(seq iter.Seq[time.Time]) (time.Time, bool) {
	for start := range seq {
		return start, true
	}
	return time.Time{}, false
}

// CollectSlots materializes up to limit starts from the sequence.
func CollectSlots(seq iter.Seq[time.Time], limit int) []time.Time {
	if limit <= 0 {
		return nil
	}
	slots := make([]time.Time, 0, limit)
	for start := range seq {
		slots = append(slots, start)
		if len(slots) == limit {
			break
		}
	}
	return slots
}

// MergeByTime interleaves several per-staff slot sequences into one sequence
// ordered by start time, for resource-agnostic "any available" queries.
func MergeByTime(seqs ...iter.Seq[time.Time]) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		nexts := make([]func() (time.Time, bool), 0, len(seqs))
		stops := make([]func(), 0, len(seqs))
		for _, seq := range seqs {
			next, stop := iter.Pull(seq)
			nexts = append(nexts, next)
			stops = append(stops, stop)
		}
		defer func() {
			for _, stop := range stops {
				stop()
			}
		}()

		heads := make([]time.Time, len(seqs))
		alive := make([]bool, len(seqs))
		for i, next := range nexts {
			heads[i], alive[i] = next()
		}
		for {
			best := -1
			for i := range heads {
				if !alive[i] {
					continue
				}
				if best == -1 || heads[i].Before(heads[best]) {
					best = i
				}
			}
			if best == -1 {
				return
			}
			if !yield(heads[best]) {
				return
			}
			heads[best], alive[best] = nexts[best]()
		}
	}
}
