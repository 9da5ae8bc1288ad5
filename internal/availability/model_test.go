package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

// 2025-03-10 is a Monday.
var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func utc(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func TestDayIsOpen(t *testing.T) {
	staffID := uuid.New()
	store := NewMemoryStore()
	store.AddStaff(staffID, time.UTC)
	store.SetWorkingHours(staffID, time.Monday, 9*time.Hour, 17*time.Hour, 0, 0)
	store.AddTimeOff(staffID, timerange.New(utc(12, 0), utc(13, 0)))

	day, err := store.Day(context.Background(), staffID, monday)
	require.NoError(t, err)
	require.Len(t, day.Windows, 1)

	tests := []struct {
		name string
		r    timerange.Range
		open bool
	}{
		{"inside window", timerange.New(utc(9, 0), utc(10, 0)), true},
		{"flush against close", timerange.New(utc(16, 0), utc(17, 0)), true},
		{"spills past close", timerange.New(utc(16, 30), utc(17, 30)), false},
		{"before open", timerange.New(utc(8, 0), utc(9, 0)), false},
		{"intersects time off", timerange.New(utc(12, 30), utc(13, 30)), false},
		{"right after time off", timerange.New(utc(13, 0), utc(14, 0)), true},
		{"invalid range", timerange.Range{Start: utc(10, 0), End: utc(10, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.open, day.IsOpen(tt.r))
		})
	}

	assert.True(t, day.IsTimeOff(utc(12, 30)))
	assert.False(t, day.IsTimeOff(utc(13, 0)), "time off end is exclusive")
}

func TestDayMidDayBreakSplitsWindow(t *testing.T) {
	staffID := uuid.New()
	store := NewMemoryStore()
	store.AddStaff(staffID, time.UTC)
	store.SetWorkingHours(staffID, time.Monday,
		9*time.Hour, 17*time.Hour,
		12*time.Hour+30*time.Minute, 13*time.Hour+30*time.Minute)

	day, err := store.Day(context.Background(), staffID, monday)
	require.NoError(t, err)
	require.Len(t, day.Windows, 2)
	assert.Equal(t, timerange.New(utc(9, 0), utc(12, 30)), day.Windows[0])
	assert.Equal(t, timerange.New(utc(13, 30), utc(17, 0)), day.Windows[1])

	assert.False(t, day.IsOpen(timerange.New(utc(12, 0), utc(13, 0))), "spans the break")
	assert.True(t, day.IsOpen(timerange.New(utc(13, 30), utc(14, 30))))

	bounds := day.Bounds()
	assert.Equal(t, utc(9, 0), bounds.Start)
	assert.Equal(t, utc(17, 0), bounds.End)
}

func TestDayClosedWeekday(t *testing.T) {
	staffID := uuid.New()
	store := NewMemoryStore()
	store.AddStaff(staffID, time.UTC)
	store.SetWorkingHours(staffID, time.Tuesday, 9*time.Hour, 17*time.Hour, 0, 0)

	day, err := store.Day(context.Background(), staffID, monday)
	require.NoError(t, err)
	assert.True(t, day.Closed())
	assert.True(t, day.Bounds().IsZero())
	assert.False(t, day.IsOpen(timerange.New(utc(9, 0), utc(10, 0))))
}

func TestDayStaffTimezone(t *testing.T) {
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	staffID := uuid.New()
	store := NewMemoryStore()
	store.AddStaff(staffID, warsaw)
	store.SetWorkingHours(staffID, time.Monday, 9*time.Hour, 17*time.Hour, 0, 0)

	day, err := store.Day(context.Background(), staffID, monday)
	require.NoError(t, err)
	require.Len(t, day.Windows, 1)
	// Warsaw is UTC+1 on 2025-03-10, so 09:00 local is 08:00 UTC.
	assert.Equal(t, utc(8, 0), day.Windows[0].Start)
	assert.Equal(t, utc(16, 0), day.Windows[0].End)
}

func TestMemoryStoreUnknownStaff(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Day(context.Background(), uuid.New(), monday)
	assert.ErrorIs(t, err, ErrStaffNotFound)
}
