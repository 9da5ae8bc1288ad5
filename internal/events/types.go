// Package events defines the booking event envelope and its delivery
// machinery. Delivery is at-least-once: the same event may be emitted more
// than once after a crash-and-retry, so consumers dedupe by appointment id
// plus version.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the booking engine.
const (
	TypeBookingCreated      = "booking.created"
	TypeBookingStateChanged = "booking.state_changed"
	TypeBookingRescheduled  = "booking.rescheduled"
)

// AppointmentSnapshot is the full appointment state carried by every event.
type AppointmentSnapshot struct {
	ID        uuid.UUID `json:"id"`
	StaffID   uuid.UUID `json:"staff_id"`
	ServiceID uuid.UUID `json:"service_id"`
	ClientID  string    `json:"client_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Status    string    `json:"status"`
	Version   int64     `json:"version"`
}

// Interval is a plain start/end pair used by reschedule events.
type Interval struct {
	StaffID  uuid.UUID `json:"staff_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Envelope is the wire format written to the outbox and handed to consumers.
type Envelope struct {
	ID          uuid.UUID           `json:"id"`
	Type        string              `json:"type"`
	OccurredAt  time.Time           `json:"occurred_at"`
	Appointment AppointmentSnapshot `json:"appointment"`

	// Populated for booking.state_changed.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Populated for booking.rescheduled.
	OldInterval *Interval `json:"old_interval,omitempty"`
	NewInterval *Interval `json:"new_interval,omitempty"`
}

// BookingCreated builds a booking.created envelope.
func BookingCreated(snap AppointmentSnapshot) Envelope {
	return Envelope{
		ID:          uuid.New(),
		Type:        TypeBookingCreated,
		OccurredAt:  time.Now().UTC(),
		Appointment: snap,
	}
}

// BookingStateChanged builds a booking.state_changed envelope.
func BookingStateChanged(snap AppointmentSnapshot, from, to string) Envelope {
	return Envelope{
		ID:          uuid.New(),
		Type:        TypeBookingStateChanged,
		OccurredAt:  time.Now().UTC(),
		Appointment: snap,
		From:        from,
		To:          to,
	}
}

// BookingRescheduled builds a booking.rescheduled envelope.
func BookingRescheduled(snap AppointmentSnapshot, oldInterval, newInterval Interval) Envelope {
	return Envelope{
		ID:          uuid.New(),
		Type:        TypeBookingRescheduled,
		OccurredAt:  time.Now().UTC(),
		Appointment: snap,
		OldInterval: &oldInterval,
		NewInterval: &newInterval,
	}
}
