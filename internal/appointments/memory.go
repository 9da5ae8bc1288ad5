package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mariobeauty/salon-scheduling/internal/events"
	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

// MemoryStore keeps appointments in memory for local development and tests.
// Per-staff serialization uses a lock channel per staff id with a bounded
// wait, and a verification sweep after each commit stands in for the
// database exclusion constraint.
type MemoryStore struct {
	mu          sync.RWMutex
	appts       map[uuid.UUID]Appointment
	byKey       map[string]uuid.UUID
	lastBooked  map[uuid.UUID]time.Time
	locks       map[uuid.UUID]chan struct{}
	lockTimeout time.Duration
	sink        events.Sink
	now         func() time.Time
}

// NewMemoryStore creates an empty store. Events appended in transactions are
// published to sink after commit; a nil sink drops them.
func NewMemoryStore(lockTimeout time.Duration, sink events.Sink) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &MemoryStore{
		appts:       make(map[uuid.UUID]Appointment),
		byKey:       make(map[string]uuid.UUID),
		lastBooked:  make(map[uuid.UUID]time.Time),
		locks:       make(map[uuid.UUID]chan struct{}),
		lockTimeout: lockTimeout,
		sink:        sink,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) staffLock(staffID uuid.UUID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[staffID]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[staffID] = lock
	}
	return lock
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.appts[id]
	if !ok {
		return Appointment{}, notFoundError("appointment", id)
	}
	return appt, nil
}

// FindByIdempotencyKey implements Store.
func (s *MemoryStore) FindByIdempotencyKey(_ context.Context, key string) (Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byKey[key]; ok {
		return s.appts[id], nil
	}
	return Appointment{}, &Error{Kind: KindNotFound, Message: "no appointment for idempotency key"}
}

// ActiveInRange implements Store.
func (s *MemoryStore) ActiveInRange(_ context.Context, staffID uuid.UUID, window timerange.Range) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeInRangeLocked(staffID, window, nil), nil
}

func (s *MemoryStore) activeInRangeLocked(staffID uuid.UUID, window timerange.Range, overlay map[uuid.UUID]Appointment) []Appointment {
	var out []Appointment
	seen := make(map[uuid.UUID]bool, len(overlay))
	consider := func(appt Appointment) {
		if appt.StaffID != staffID || !appt.Status.Active() {
			return
		}
		if appt.BufferedInterval().Overlaps(window) {
			out = append(out, appt)
		}
	}
	for id, appt := range overlay {
		seen[id] = true
		consider(appt)
	}
	for id, appt := range s.appts {
		if !seen[id] {
			consider(appt)
		}
	}
	sortAppointmentsByStart(out)
	return out
}

// StaffLeastRecentlyBooked implements Store. Staff with no bookings sort
// first, then by oldest most-recent booking, ties broken by id for
// determinism.
func (s *MemoryStore) StaffLeastRecentlyBooked(_ context.Context, candidates []uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]uuid.UUID(nil), candidates...)
	sortStaffByLastBooked(out, s.lastBooked)
	return out, nil
}

// InStaffTx implements Store.
func (s *MemoryStore) InStaffTx(ctx context.Context, staffID uuid.UUID, fn func(tx Tx) error) error {
	lock := s.staffLock(staffID)
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case lock <- struct{}{}:
	case <-timer.C:
		return busyError(nil)
	case <-ctx.Done():
		return unavailableError("acquire staff lock", ctx.Err())
	}
	defer func() { <-lock }()

	tx := &memoryTx{store: s, pending: make(map[uuid.UUID]Appointment)}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

// commit applies the pending writes, then re-verifies that no staff calendar
// ended up with overlapping buffered intervals. The per-staff lock makes a
// violation impossible for well-behaved callers; the sweep catches callers
// that skipped the conflict check, the same way the exclusion constraint
// does in Postgres.
func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()

	backup := make(map[uuid.UUID]*Appointment, len(tx.pending))
	staffTouched := make(map[uuid.UUID]bool)
	for id, appt := range tx.pending {
		if prev, ok := s.appts[id]; ok {
			prevCopy := prev
			backup[id] = &prevCopy
		} else {
			backup[id] = nil
		}
		s.appts[id] = appt
		if appt.IdempotencyKey != "" {
			s.byKey[appt.IdempotencyKey] = id
		}
		staffTouched[appt.StaffID] = true
	}

	if conflictID, ok := s.verifyLocked(staffTouched); !ok {
		for id, prev := range backup {
			if prev == nil {
				delete(s.appts, id)
			} else {
				s.appts[id] = *prev
			}
		}
		s.mu.Unlock()
		return &Error{
			Kind:           KindConflict,
			Message:        "buffered interval overlaps an existing appointment",
			ConflictingIDs: []uuid.UUID{conflictID},
		}
	}

	now := s.now()
	for _, appt := range tx.pending {
		if appt.Status == StatusScheduled && appt.Version == 1 {
			s.lastBooked[appt.StaffID] = now
		}
	}
	s.mu.Unlock()

	if s.sink != nil {
		// delivery is best-effort in memory mode
		for _, env := range tx.events {
			_ = s.sink.Publish(context.Background(), env)
		}
	}
	return nil
}

func (s *MemoryStore) verifyLocked(staff map[uuid.UUID]bool) (uuid.UUID, bool) {
	for staffID := range staff {
		var active []Appointment
		for _, appt := range s.appts {
			if appt.StaffID == staffID && appt.Status.Active() {
				active = append(active, appt)
			}
		}
		sortAppointmentsByStart(active)
		for i := 1; i < len(active); i++ {
			if active[i-1].BufferedInterval().Overlaps(active[i].BufferedInterval()) {
				return active[i-1].ID, false
			}
		}
	}
	return uuid.Nil, true
}

type memoryTx struct {
	store   *MemoryStore
	pending map[uuid.UUID]Appointment
	events  []events.Envelope
}

func (t *memoryTx) Get(_ context.Context, id uuid.UUID) (Appointment, error) {
	if appt, ok := t.pending[id]; ok {
		return appt, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	appt, ok := t.store.appts[id]
	if !ok {
		return Appointment{}, notFoundError("appointment", id)
	}
	return appt, nil
}

func (t *memoryTx) ActiveInRange(_ context.Context, staffID uuid.UUID, window timerange.Range) ([]Appointment, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.activeInRangeLocked(staffID, window, t.pending), nil
}

func (t *memoryTx) Insert(_ context.Context, appt *Appointment) error {
	if appt.IdempotencyKey != "" {
		t.store.mu.RLock()
		_, dup := t.store.byKey[appt.IdempotencyKey]
		t.store.mu.RUnlock()
		if !dup {
			for _, pending := range t.pending {
				if pending.IdempotencyKey == appt.IdempotencyKey {
					dup = true
					break
				}
			}
		}
		if dup {
			return errDuplicateIdempotencyKey
		}
	}
	now := t.store.now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.pending[appt.ID] = *appt
	return nil
}

func (t *memoryTx) UpdateSchedule(_ context.Context, appt *Appointment) error {
	return t.stageUpdate(appt)
}

func (t *memoryTx) UpdateStatus(_ context.Context, appt *Appointment) error {
	return t.stageUpdate(appt)
}

func (t *memoryTx) stageUpdate(appt *Appointment) error {
	if _, err := t.Get(context.Background(), appt.ID); err != nil {
		return err
	}
	appt.Version++
	appt.UpdatedAt = t.store.now()
	t.pending[appt.ID] = *appt
	return nil
}

func (t *memoryTx) AppendEvent(_ context.Context, env events.Envelope) error {
	t.events = append(t.events, env)
	return nil
}

func sortAppointmentsByStart(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartsAt.Before(appts[j].StartsAt) })
}

func sortStaffByLastBooked(ids []uuid.UUID, lastBooked map[uuid.UUID]time.Time) {
	sort.Slice(ids, func(i, j int) bool {
		ta, aok := lastBooked[ids[i]]
		tb, bok := lastBooked[ids[j]]
		if aok != bok {
			return !aok
		}
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return ids[i].String() < ids[j].String()
	})
}
