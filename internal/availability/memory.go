package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

// MemoryStore is an in-memory availability source for local development and
// tests. Seed it with SetWorkingHours and AddTimeOff.
type MemoryStore struct {
	mu      sync.RWMutex
	tz      map[uuid.UUID]*time.Location
	shifts  map[uuid.UUID]map[time.Weekday]shift
	timeOff map[uuid.UUID][]timerange.Range
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tz:      make(map[uuid.UUID]*time.Location),
		shifts:  make(map[uuid.UUID]map[time.Weekday]shift),
		timeOff: make(map[uuid.UUID][]timerange.Range),
	}
}

// AddStaff registers a staff member with a timezone (nil means UTC).
func (s *MemoryStore) AddStaff(staffID uuid.UUID, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tz[staffID] = loc
	if s.shifts[staffID] == nil {
		s.shifts[staffID] = make(map[time.Weekday]shift)
	}
}

// SetWorkingHours sets the weekday template as offsets from local midnight,
// e.g. 9h-17h. Zero break durations mean no break.
func (s *MemoryStore) SetWorkingHours(staffID uuid.UUID, weekday time.Weekday, start, end, breakStart, breakEnd time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shifts[staffID] == nil {
		s.shifts[staffID] = make(map[time.Weekday]shift)
	}
	s.shifts[staffID][weekday] = shift{start: start, end: end, breakStart: breakStart, breakEnd: breakEnd}
}

// SetDailyWorkingHours applies the same shift to every day of the week.
func (s *MemoryStore) SetDailyWorkingHours(staffID uuid.UUID, start, end time.Duration) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		s.SetWorkingHours(staffID, wd, start, end, 0, 0)
	}
}

// AddTimeOff records an absence.
func (s *MemoryStore) AddTimeOff(staffID uuid.UUID, off timerange.Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeOff[staffID] = append(s.timeOff[staffID], off)
}

// Day implements Store.
func (s *MemoryStore) Day(_ context.Context, staffID uuid.UUID, date time.Time) (Day, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.tz[staffID]
	if !ok {
		return Day{}, ErrStaffNotFound
	}
	local := date.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	day := Day{StaffID: staffID, Date: midnight}

	if sh, ok := s.shifts[staffID][midnight.Weekday()]; ok {
		day.Windows = sh.windows(midnight)
	}
	bounds := day.Bounds()
	if !bounds.IsValid() {
		return day, nil
	}
	for _, off := range s.timeOff[staffID] {
		if clamped := off.Clamp(bounds); clamped.IsValid() {
			day.TimeOff = append(day.TimeOff, clamped)
		}
	}
	timerange.SortByStart(day.TimeOff)
	return day, nil
}

// StaffIDs implements Store with a stable ordering.
func (s *MemoryStore) StaffIDs(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.tz))
	for id := range s.tz {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
