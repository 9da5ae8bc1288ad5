package appointments

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mariobeauty/salon-scheduling/internal/availability"
	"github.com/mariobeauty/salon-scheduling/internal/events"
	"github.com/mariobeauty/salon-scheduling/internal/idempotency"
	"github.com/mariobeauty/salon-scheduling/internal/observability/metrics"
	"github.com/mariobeauty/salon-scheduling/internal/scheduling"
	"github.com/mariobeauty/salon-scheduling/internal/services"
	"github.com/mariobeauty/salon-scheduling/internal/timerange"
	"github.com/mariobeauty/salon-scheduling/pkg/logging"
)

var bookingTracer = otel.Tracer("salon/booking")

// ManagerConfig tunes slot search and conflict suggestions.
type ManagerConfig struct {
	// Granularity is the slot step; zero means scheduling.DefaultGranularity.
	Granularity time.Duration
	// SuggestionLimit caps the alternatives attached to Conflict errors.
	SuggestionLimit int
}

// Manager is the booking transaction manager: it owns the commit path, the
// transition operations, and the read-side conflict/slot queries.
type Manager struct {
	store        Store
	availability availability.Store
	catalog      services.Catalog
	idem         *idempotency.Cache
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger

	granularity     time.Duration
	suggestionLimit int
	now             func() time.Time
}

// NewManager wires the manager. idem and m may be nil; both degrade to no-ops.
func NewManager(store Store, avail availability.Store, catalog services.Catalog, idem *idempotency.Cache, m *metrics.BookingMetrics, logger *logging.Logger, cfg ManagerConfig) *Manager {
	if store == nil || avail == nil || catalog == nil {
		panic("appointments: store, availability and catalog are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	granularity := cfg.Granularity
	if granularity <= 0 {
		granularity = scheduling.DefaultGranularity
	}
	limit := cfg.SuggestionLimit
	if limit <= 0 {
		limit = 5
	}
	return &Manager{
		store:           store,
		availability:    avail,
		catalog:         catalog,
		idem:            idem,
		metrics:         m,
		logger:          logger.Component("booking"),
		granularity:     granularity,
		suggestionLimit: limit,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Book commits a booking request. On Conflict the returned error carries the
// competing appointment ids and up to SuggestionLimit alternative start
// times. Requests with an idempotency key are safe to retry: a replay
// returns the appointment created by the first attempt.
func (m *Manager) Book(ctx context.Context, req BookingRequest) (Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.commit")
	defer span.End()

	if err := req.Validate(); err != nil {
		return Appointment{}, err
	}
	if appt, ok := m.replayedBooking(ctx, req.IdempotencyKey); ok {
		m.logger.Info("booking replayed from idempotency key", "appointment_id", appt.ID)
		return appt, nil
	}

	svc, err := m.catalog.Service(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, services.ErrServiceNotFound) {
			return Appointment{}, notFoundError("service", req.ServiceID)
		}
		return Appointment{}, unavailableError("load service", err)
	}
	candidate := timerange.FromDuration(req.StartsAt.UTC(), svc.Duration)
	span.SetAttributes(
		attribute.String("booking.service_id", req.ServiceID.String()),
		attribute.String("booking.starts_at", candidate.Start.Format(time.RFC3339)),
	)

	staffIDs, err := m.resolveStaff(ctx, req)
	if err != nil {
		return Appointment{}, err
	}

	var lastErr error
	for _, staffID := range staffIDs {
		appt, err := m.commitOn(ctx, staffID, req, svc, candidate)
		if err == nil {
			m.metrics.ObserveCommit("success")
			m.idem.Remember(ctx, req.IdempotencyKey, appt.ID)
			m.logger.Info("booking committed",
				"appointment_id", appt.ID, "staff_id", appt.StaffID,
				"starts_at", appt.StartsAt, "client_id", appt.ClientID)
			return appt, nil
		}
		if errors.Is(err, errDuplicateIdempotencyKey) {
			appt, ferr := m.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
			if ferr != nil {
				return Appointment{}, unavailableError("resolve duplicate idempotency key", ferr)
			}
			m.metrics.ObserveCommit("replay")
			m.idem.Remember(ctx, req.IdempotencyKey, appt.ID)
			return appt, nil
		}
		lastErr = err
		if e, ok := AsError(err); ok && (e.Kind == KindConflict || e.Kind == KindOutOfHours) {
			// with "any staff" the next candidate may still be free
			continue
		}
		break
	}
	return Appointment{}, m.finishBookingError(ctx, staffIDs, candidate.Start, svc, lastErr)
}

// replayedBooking resolves an idempotency key before taking any lock, first
// through the Redis fast path, then against the authoritative key column.
func (m *Manager) replayedBooking(ctx context.Context, key string) (Appointment, bool) {
	if key == "" {
		return Appointment{}, false
	}
	if id, ok := m.idem.Lookup(ctx, key); ok {
		if appt, err := m.store.GetByID(ctx, id); err == nil {
			return appt, true
		}
	}
	if appt, err := m.store.FindByIdempotencyKey(ctx, key); err == nil {
		m.idem.Remember(ctx, key, appt.ID)
		return appt, true
	}
	return Appointment{}, false
}

// resolveStaff returns the staff ids to attempt, in order. An explicit staff
// id is attempted alone; "any" walks every active staff member least
// recently booked first.
func (m *Manager) resolveStaff(ctx context.Context, req BookingRequest) ([]uuid.UUID, error) {
	if req.StaffID != uuid.Nil {
		return []uuid.UUID{req.StaffID}, nil
	}
	ids, err := m.availability.StaffIDs(ctx)
	if err != nil {
		return nil, unavailableError("list staff", err)
	}
	if len(ids) == 0 {
		return nil, &Error{Kind: KindNotFound, Message: "no staff available"}
	}
	ordered, err := m.store.StaffLeastRecentlyBooked(ctx, ids)
	if err != nil {
		return nil, unavailableError("order staff", err)
	}
	if len(ordered) == 0 {
		return nil, &Error{Kind: KindNotFound, Message: "no staff available"}
	}
	return ordered, nil
}

// commitOn runs the authoritative check-and-insert for one staff member. A
// conflict raised by the storage constraint rather than the in-transaction
// check is retried once: the advisory re-check then either reports the real
// competing ids or succeeds because the competitor was cancelled.
func (m *Manager) commitOn(ctx context.Context, staffID uuid.UUID, req BookingRequest, svc services.Service, candidate timerange.Range) (Appointment, error) {
	var appt Appointment
	for attempt := 0; ; attempt++ {
		appt = Appointment{}
		err := m.inStaffTx(ctx, staffID, func(tx Tx) error {
			day, booked, err := m.loadCalendar(ctx, staffID, candidate, tx.ActiveInRange)
			if err != nil {
				return err
			}
			res := scheduling.CheckConflict(day, candidate, svc.Buffer, booked, uuid.Nil)
			m.observeCheck(res)
			if err := resultError(res); err != nil {
				return err
			}
			appt = Appointment{
				ID:             uuid.New(),
				StaffID:        staffID,
				ServiceID:      req.ServiceID,
				ClientID:       req.ClientID,
				StartsAt:       candidate.Start,
				EndsAt:         candidate.End,
				Buffer:         svc.Buffer,
				Status:         StatusScheduled,
				Version:        1,
				IdempotencyKey: req.IdempotencyKey,
			}
			if err := tx.Insert(ctx, &appt); err != nil {
				return err
			}
			return tx.AppendEvent(ctx, events.BookingCreated(appt.Snapshot()))
		})
		if err == nil {
			return appt, nil
		}
		if e, ok := AsError(err); ok && e.Kind == KindConflict && len(e.ConflictingIDs) == 0 && attempt == 0 {
			continue
		}
		return Appointment{}, err
	}
}

func (m *Manager) inStaffTx(ctx context.Context, staffID uuid.UUID, fn func(tx Tx) error) error {
	held := time.Now()
	err := m.store.InStaffTx(ctx, staffID, fn)
	m.metrics.ObserveLockHold(time.Since(held).Seconds())
	return err
}

// loadCalendar resolves the availability day and the calendar-blocking
// appointments around the candidate in one place, shared by the commit and
// read paths.
func (m *Manager) loadCalendar(ctx context.Context, staffID uuid.UUID, candidate timerange.Range, activeInRange func(context.Context, uuid.UUID, timerange.Range) ([]Appointment, error)) (availability.Day, []scheduling.Booked, error) {
	day, err := m.availability.Day(ctx, staffID, candidate.Start)
	if err != nil {
		if errors.Is(err, availability.ErrStaffNotFound) {
			return availability.Day{}, nil, notFoundError("staff", staffID)
		}
		return availability.Day{}, nil, unavailableError("load availability", err)
	}
	window := scheduling.ScanWindow(day, bookedScanPad)
	if !window.IsValid() {
		window = timerange.Range{Start: candidate.Start.Add(-bookedScanPad), End: candidate.End.Add(bookedScanPad)}
	}
	appts, err := activeInRange(ctx, staffID, window)
	if err != nil {
		return availability.Day{}, nil, err
	}
	booked := make([]scheduling.Booked, len(appts))
	for i, a := range appts {
		booked[i] = a.Booked()
	}
	return day, booked, nil
}

func (m *Manager) observeCheck(res scheduling.Result) {
	switch {
	case res.OK:
		m.metrics.ObserveConflictCheck("ok")
	case res.OutOfHours:
		m.metrics.ObserveConflictCheck("out_of_hours")
	default:
		m.metrics.ObserveConflictCheck("conflict")
	}
}

func resultError(res scheduling.Result) error {
	switch {
	case res.OK:
		return nil
	case res.OutOfHours:
		return &Error{Kind: KindOutOfHours, Message: "interval is outside working hours or during time off"}
	default:
		return &Error{
			Kind:           KindConflict,
			Message:        "buffered interval overlaps an existing appointment",
			ConflictingIDs: res.ConflictingIDs,
		}
	}
}

// finishBookingError records the commit outcome and, for conflicts, attaches
// alternative slots across the attempted staff.
func (m *Manager) finishBookingError(ctx context.Context, staffIDs []uuid.UUID, startsAt time.Time, svc services.Service, err error) error {
	e, ok := AsError(err)
	if !ok {
		m.metrics.ObserveCommit("error")
		return err
	}
	switch e.Kind {
	case KindConflict:
		m.metrics.ObserveCommit("conflict")
		e.Alternatives = m.alternatives(ctx, staffIDs, startsAt, svc)
	case KindOutOfHours:
		m.metrics.ObserveCommit("out_of_hours")
		e.Alternatives = m.alternatives(ctx, staffIDs, startsAt, svc)
	case KindBusy:
		m.metrics.ObserveCommit("busy")
	default:
		m.metrics.ObserveCommit("error")
	}
	return e
}

// alternatives merges free slots across the given staff for the candidate
// date, ordered by start time.
func (m *Manager) alternatives(ctx context.Context, staffIDs []uuid.UUID, date time.Time, svc services.Service) []time.Time {
	seqs := make([]iter.Seq[time.Time], 0, len(staffIDs))
	for _, staffID := range staffIDs {
		seq, err := m.slotSeq(ctx, staffID, date, svc)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	if len(seqs) == 0 {
		return nil
	}
	return scheduling.CollectSlots(scheduling.MergeByTime(seqs...), m.suggestionLimit)
}

func (m *Manager) slotSeq(ctx context.Context, staffID uuid.UUID, date time.Time, svc services.Service) (iter.Seq[time.Time], error) {
	day, booked, err := m.loadCalendar(ctx, staffID, timerange.FromDuration(date.UTC(), svc.Duration), m.store.ActiveInRange)
	if err != nil {
		return nil, err
	}
	return scheduling.FreeSlots(day, booked, svc.Duration, svc.Buffer, m.granularity), nil
}

// Check runs the advisory, lock-free conflict check used by UIs before a
// full commit. excludeID skips one appointment, for reschedule previews.
func (m *Manager) Check(ctx context.Context, staffID, serviceID uuid.UUID, startsAt time.Time, excludeID uuid.UUID) (scheduling.Result, error) {
	svc, err := m.catalog.Service(ctx, serviceID)
	if err != nil {
		if errors.Is(err, services.ErrServiceNotFound) {
			return scheduling.Result{}, notFoundError("service", serviceID)
		}
		return scheduling.Result{}, unavailableError("load service", err)
	}
	candidate := timerange.FromDuration(startsAt.UTC(), svc.Duration)
	day, booked, err := m.loadCalendar(ctx, staffID, candidate, m.store.ActiveInRange)
	if err != nil {
		return scheduling.Result{}, err
	}
	res := scheduling.CheckConflict(day, candidate, svc.Buffer, booked, excludeID)
	m.observeCheck(res)
	return res, nil
}

// StaffSlots lists up to limit free start times for one staff member on the
// given date.
func (m *Manager) StaffSlots(ctx context.Context, staffID uuid.UUID, date time.Time, serviceID uuid.UUID, limit int) ([]time.Time, error) {
	svc, err := m.catalog.Service(ctx, serviceID)
	if err != nil {
		if errors.Is(err, services.ErrServiceNotFound) {
			return nil, notFoundError("service", serviceID)
		}
		return nil, unavailableError("load service", err)
	}
	if limit <= 0 {
		limit = m.suggestionLimit
	}
	seq, err := m.slotSeq(ctx, staffID, date, svc)
	if err != nil {
		return nil, err
	}
	return scheduling.CollectSlots(seq, limit), nil
}

// AnySlots merges free start times across every active staff member.
func (m *Manager) AnySlots(ctx context.Context, date time.Time, serviceID uuid.UUID, limit int) ([]time.Time, error) {
	svc, err := m.catalog.Service(ctx, serviceID)
	if err != nil {
		if errors.Is(err, services.ErrServiceNotFound) {
			return nil, notFoundError("service", serviceID)
		}
		return nil, unavailableError("load service", err)
	}
	if limit <= 0 {
		limit = m.suggestionLimit
	}
	ids, err := m.availability.StaffIDs(ctx)
	if err != nil {
		return nil, unavailableError("list staff", err)
	}
	seqs := make([]iter.Seq[time.Time], 0, len(ids))
	for _, staffID := range ids {
		seq, err := m.slotSeq(ctx, staffID, date, svc)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	return scheduling.CollectSlots(scheduling.MergeByTime(seqs...), limit), nil
}

// Get loads one appointment.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return m.store.GetByID(ctx, id)
}

// Confirm moves a scheduled appointment to confirmed.
func (m *Manager) Confirm(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return m.transition(ctx, id, StatusConfirmed, "")
}

// Start moves a confirmed appointment to in_progress.
func (m *Manager) Start(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return m.transition(ctx, id, StatusInProgress, "")
}

// Complete moves an in-progress appointment to completed.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return m.transition(ctx, id, StatusCompleted, "")
}

// Cancel cancels a scheduled or confirmed appointment, releasing its
// buffered interval for future bookings.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID, reason string) (Appointment, error) {
	return m.transition(ctx, id, StatusCancelled, reason)
}

// MarkNoShow records a no-show. Allowed only once the start time has passed.
func (m *Manager) MarkNoShow(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return m.transition(ctx, id, StatusNoShow, "")
}

func (m *Manager) transition(ctx context.Context, id uuid.UUID, to Status, reason string) (Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.appointment_id", id.String()),
		attribute.String("booking.to", string(to)),
	)

	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return Appointment{}, err
	}

	var out Appointment
	err = m.inStaffTx(ctx, current.StaffID, func(tx Tx) error {
		appt, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if !appt.Status.CanTransitionTo(to) {
			return invalidTransitionError(appt.Status, to, "")
		}
		if to == StatusNoShow && m.now().Before(appt.StartsAt) {
			return invalidTransitionError(appt.Status, to, "no-show requires the start time to have passed")
		}
		from := appt.Status
		appt.Status = to
		if to == StatusCancelled {
			appt.CancellationReason = reason
		}
		if err := tx.UpdateStatus(ctx, &appt); err != nil {
			return err
		}
		out = appt
		return tx.AppendEvent(ctx, events.BookingStateChanged(appt.Snapshot(), string(from), string(to)))
	})
	if err != nil {
		m.metrics.ObserveTransition(string(to), "rejected")
		return Appointment{}, err
	}
	m.metrics.ObserveTransition(string(to), "success")
	m.logger.Info("appointment transitioned", "appointment_id", id, "to", to)
	return out, nil
}

// Reschedule moves an appointment to a new start time and, when newStaff is
// set, a new staff member. The new interval is validated with the
// appointment itself excluded, then updated under the target staff member's
// lock in the same transactional discipline as Book.
func (m *Manager) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time, newStaff uuid.UUID) (Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("booking.appointment_id", id.String()))

	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if current.Status != StatusScheduled && current.Status != StatusConfirmed {
		return Appointment{}, invalidTransitionError(current.Status, current.Status,
			"only scheduled or confirmed appointments can be rescheduled")
	}

	target := current.StaffID
	if newStaff != uuid.Nil {
		target = newStaff
	}
	duration := current.EndsAt.Sub(current.StartsAt)
	candidate := timerange.FromDuration(newStart.UTC(), duration)

	var out Appointment
	err = m.inStaffTx(ctx, target, func(tx Tx) error {
		appt, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusScheduled && appt.Status != StatusConfirmed {
			return invalidTransitionError(appt.Status, appt.Status,
				"only scheduled or confirmed appointments can be rescheduled")
		}
		day, booked, err := m.loadCalendar(ctx, target, candidate, tx.ActiveInRange)
		if err != nil {
			return err
		}
		res := scheduling.CheckConflict(day, candidate, appt.Buffer, booked, id)
		m.observeCheck(res)
		if err := resultError(res); err != nil {
			return err
		}
		oldInterval := appt.eventInterval()
		appt.StaffID = target
		appt.StartsAt = candidate.Start
		appt.EndsAt = candidate.End
		if err := tx.UpdateSchedule(ctx, &appt); err != nil {
			return err
		}
		out = appt
		return tx.AppendEvent(ctx, events.BookingRescheduled(appt.Snapshot(), oldInterval, appt.eventInterval()))
	})
	if err != nil {
		if e, ok := AsError(err); ok && (e.Kind == KindConflict || e.Kind == KindOutOfHours) {
			svc, serr := m.catalog.Service(ctx, current.ServiceID)
			if serr == nil {
				e.Alternatives = m.alternatives(ctx, []uuid.UUID{target}, candidate.Start, svc)
			}
			return Appointment{}, e
		}
		return Appointment{}, err
	}
	m.logger.Info("appointment rescheduled", "appointment_id", id, "staff_id", target, "starts_at", candidate.Start)
	return out, nil
}
