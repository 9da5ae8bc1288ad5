package scheduling

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariobeauty/salon-scheduling/internal/availability"
	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

func collectAll(day availability.Day, booked []Booked, duration, buffer, granularity time.Duration) []time.Time {
	var starts []time.Time
	for s := range FreeSlots(day, booked, duration, buffer, granularity) {
		starts = append(starts, s)
	}
	return starts
}

func TestFreeSlotsEmptyDay(t *testing.T) {
	day := workDay()
	starts := collectAll(day, nil, 45*time.Minute, 0, time.Hour)

	// 09:00 through 16:00 hourly; 16:15 would not finish by 17:00 either way
	require.Len(t, starts, 8)
	assert.Equal(t, utc(9, 0), starts[0])
	assert.Equal(t, utc(16, 0), starts[7])
}

func TestFreeSlotsRespectsBufferedBooking(t *testing.T) {
	booked := []Booked{{ID: uuid.New(), Range: rng(10, 0, 10, 45), Buffer: 15 * time.Minute}}
	day := workDay()

	starts := collectAll(day, booked, 45*time.Minute, 15*time.Minute, 15*time.Minute)

	assert.NotContains(t, starts, utc(10, 30))
	assert.NotContains(t, starts, utc(10, 45), "inside the trailing buffer")
	assert.Contains(t, starts, utc(11, 0), "first start after the buffer")
	assert.Contains(t, starts, utc(9, 0))
	// 09:15 would end 10:00 and its own buffer would run into the booking
	assert.NotContains(t, starts, utc(9, 15))
}

func TestFreeSlotsSkipsTimeOffButNotItsBufferShadow(t *testing.T) {
	day := workDay(rng(12, 0, 13, 0))
	starts := collectAll(day, nil, 30*time.Minute, 15*time.Minute, 30*time.Minute)

	assert.NotContains(t, starts, utc(12, 0))
	assert.NotContains(t, starts, utc(11, 45))
	// the buffer may overlap time off, only the service itself may not
	assert.Contains(t, starts, utc(11, 30))
	assert.Contains(t, starts, utc(13, 0))
}

func TestFreeSlotsClosedDay(t *testing.T) {
	assert.Empty(t, collectAll(availability.Day{}, nil, 30*time.Minute, 0, 0))
}

func TestFreeSlotsZeroDuration(t *testing.T) {
	assert.Empty(t, collectAll(workDay(), nil, 0, 0, 0))
}

func TestFreeSlotsRestartable(t *testing.T) {
	booked := []Booked{{ID: uuid.New(), Range: rng(10, 0, 10, 45), Buffer: 15 * time.Minute}}
	seq := FreeSlots(workDay(), booked, 45*time.Minute, 15*time.Minute, 15*time.Minute)

	first := CollectSlots(seq, 3)
	second := CollectSlots(seq, 3)
	assert.Equal(t, first, second, "ranging twice must yield the same starts")
}

// Every start the finder proposes must pass the conflict detector with the
// same inputs; otherwise commit-time re-validation would reject our own
// suggestions.
func TestFreeSlotsAgreeWithCheckConflict(t *testing.T) {
	day := workDay(rng(15, 0, 15, 30))
	booked := []Booked{
		{ID: uuid.New(), Range: rng(9, 30, 10, 15), Buffer: 15 * time.Minute},
		{ID: uuid.New(), Range: rng(13, 0, 14, 0)},
	}
	duration := 45 * time.Minute
	buffer := 15 * time.Minute

	starts := collectAll(day, booked, duration, buffer, 5*time.Minute)
	require.NotEmpty(t, starts)
	for _, start := range starts {
		candidate := timerange.FromDuration(start, duration)
		res := CheckConflict(day, candidate, buffer, booked, uuid.Nil)
		assert.True(t, res.OK, "slot %s rejected by conflict detector", start)
	}
}

// With granularity equal to the service length and no buffers, emitted slots
// plus booked time plus time off tile the working window exactly.
func TestFreeSlotsCompleteness(t *testing.T) {
	day := workDay(rng(12, 0, 13, 0))
	booked := []Booked{
		{ID: uuid.New(), Range: rng(10, 0, 11, 0)},
		{ID: uuid.New(), Range: rng(14, 0, 15, 0)},
	}
	duration := time.Hour

	var covered []timerange.Range
	for _, start := range collectAll(day, booked, duration, 0, duration) {
		covered = append(covered, timerange.FromDuration(start, duration))
	}
	for _, b := range booked {
		covered = append(covered, b.Range)
	}
	covered = append(covered, day.TimeOff...)

	merged := timerange.Merge(covered)
	require.Len(t, merged, 1)
	assert.Equal(t, day.Windows[0], merged[0])
}

func TestFirstAvailable(t *testing.T) {
	start, ok := FirstAvailable(FreeSlots(workDay(), nil, 30*time.Minute, 0, 0))
	require.True(t, ok)
	assert.Equal(t, utc(9, 0), start)

	_, ok = FirstAvailable(FreeSlots(availability.Day{}, nil, 30*time.Minute, 0, 0))
	assert.False(t, ok)
}

func TestCollectSlots(t *testing.T) {
	seq := FreeSlots(workDay(), nil, 30*time.Minute, 0, 30*time.Minute)
	assert.Len(t, CollectSlots(seq, 5), 5)
	assert.Nil(t, CollectSlots(seq, 0))
}

func TestMergeByTime(t *testing.T) {
	day := workDay()
	a := FreeSlots(day, []Booked{{ID: uuid.New(), Range: rng(9, 0, 12, 0)}}, time.Hour, 0, time.Hour)
	b := FreeSlots(day, nil, time.Hour, 0, 2*time.Hour)

	var merged []time.Time
	for s := range MergeByTime(a, b) {
		merged = append(merged, s)
	}
	require.NotEmpty(t, merged)
	assert.True(t, slices.IsSortedFunc(merged, func(x, y time.Time) int { return x.Compare(y) }))
	assert.Equal(t, utc(9, 0), merged[0])
}
