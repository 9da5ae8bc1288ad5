package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mariobeauty/salon-scheduling/internal/events"
	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

// errDuplicateIdempotencyKey signals that an insert lost to an earlier commit
// carrying the same idempotency key. The manager resolves it by returning the
// existing appointment.
var errDuplicateIdempotencyKey = errors.New("appointments: duplicate idempotency key")

// Tx is the per-staff critical section handed to InStaffTx callbacks. All
// reads inside it see a consistent snapshot and all writes commit atomically.
type Tx interface {
	Get(ctx context.Context, id uuid.UUID) (Appointment, error)
	ActiveInRange(ctx context.Context, staffID uuid.UUID, window timerange.Range) ([]Appointment, error)
	Insert(ctx context.Context, appt *Appointment) error
	UpdateSchedule(ctx context.Context, appt *Appointment) error
	UpdateStatus(ctx context.Context, appt *Appointment) error
	AppendEvent(ctx context.Context, env events.Envelope) error
}

// Store is the appointment storage contract. Methods outside InStaffTx are
// lock-free advisory reads and may observe stale data; only work done inside
// InStaffTx is authoritative.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (Appointment, error)
	FindByIdempotencyKey(ctx context.Context, key string) (Appointment, error)
	ActiveInRange(ctx context.Context, staffID uuid.UUID, window timerange.Range) ([]Appointment, error)

	// StaffLeastRecentlyBooked orders the candidate staff ids by how long ago
	// each last received a booking, least recent first.
	StaffLeastRecentlyBooked(ctx context.Context, candidates []uuid.UUID) ([]uuid.UUID, error)

	// InStaffTx serializes fn against every other writer for the same staff
	// member. Acquisition is bounded: waiting longer than the lock timeout
	// fails with a Busy error instead of queueing indefinitely.
	InStaffTx(ctx context.Context, staffID uuid.UUID, fn func(tx Tx) error) error
}

// bookedScanPad pads the candidate day on both sides so buffers spilling
// across midnight still enter the comparison set. It is an upper bound on any
// service buffer.
const bookedScanPad = 2 * time.Hour
