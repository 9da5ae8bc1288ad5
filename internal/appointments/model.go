// Package appointments holds the appointment entity, its state machine, the
// per-staff transactional stores, and the booking manager that ties conflict
// detection, slot search, idempotency, and event emission together.
package appointments

import (
	"time"

	"github.com/google/uuid"

	"github.com/mariobeauty/salon-scheduling/internal/events"
	"github.com/mariobeauty/salon-scheduling/internal/scheduling"
	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

// Appointment is the central booking entity. StartsAt/EndsAt are UTC
// instants; EndsAt is derived from the service duration at booking time and
// Buffer is frozen from the service when the appointment is created.
type Appointment struct {
	ID                 uuid.UUID     `json:"id"`
	StaffID            uuid.UUID     `json:"staff_id"`
	ServiceID          uuid.UUID     `json:"service_id"`
	ClientID           string        `json:"client_id"`
	StartsAt           time.Time     `json:"starts_at"`
	EndsAt             time.Time     `json:"ends_at"`
	Buffer             time.Duration `json:"-"`
	Status             Status        `json:"status"`
	Version            int64         `json:"version"`
	IdempotencyKey     string        `json:"-"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Interval is the unbuffered service interval.
func (a Appointment) Interval() timerange.Range {
	return timerange.New(a.StartsAt, a.EndsAt)
}

// BufferedInterval is the interval extended by the trailing buffer, which is
// what conflict checks compare.
func (a Appointment) BufferedInterval() timerange.Range {
	return a.Interval().Expand(a.Buffer)
}

// Booked adapts the appointment for the conflict detector.
func (a Appointment) Booked() scheduling.Booked {
	return scheduling.Booked{ID: a.ID, Range: a.Interval(), Buffer: a.Buffer}
}

// Snapshot builds the event payload for this appointment's current state.
func (a Appointment) Snapshot() events.AppointmentSnapshot {
	return events.AppointmentSnapshot{
		ID:        a.ID,
		StaffID:   a.StaffID,
		ServiceID: a.ServiceID,
		ClientID:  a.ClientID,
		StartsAt:  a.StartsAt,
		EndsAt:    a.EndsAt,
		Status:    string(a.Status),
		Version:   a.Version,
	}
}

func (a Appointment) eventInterval() events.Interval {
	return events.Interval{StaffID: a.StaffID, StartsAt: a.StartsAt, EndsAt: a.EndsAt}
}

// BookingRequest is the input to Manager.Book. A nil StaffID means "any
// available staff member".
type BookingRequest struct {
	StaffID        uuid.UUID `json:"staff_id,omitempty"`
	ServiceID      uuid.UUID `json:"service_id"`
	ClientID       string    `json:"client_id"`
	StartsAt       time.Time `json:"starts_at"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// Validate checks the request before any storage work.
func (r BookingRequest) Validate() error {
	if r.ServiceID == uuid.Nil {
		return validationError("service_id is required")
	}
	if r.ClientID == "" {
		return validationError("client_id is required")
	}
	if r.StartsAt.IsZero() {
		return validationError("starts_at is required")
	}
	return nil
}
