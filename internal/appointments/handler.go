package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mariobeauty/salon-scheduling/pkg/logging"
)

// Handler exposes the booking engine over HTTP.
type Handler struct {
	manager *Manager
	logger  *logging.Logger
}

// NewHandler creates the appointments HTTP handler.
func NewHandler(manager *Manager, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{manager: manager, logger: logger.Component("api")}
}

// RegisterRoutes mounts the booking endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/bookings", h.CreateBooking)
	r.Post("/bookings/check", h.CheckBooking)
	r.Get("/staff/{staffID}/slots", h.ListSlots)
	r.Get("/appointments/{id}", h.GetAppointment)
	r.Post("/appointments/{id}/confirm", h.transitionHandler(func(r *http.Request, id uuid.UUID) (Appointment, error) {
		return h.manager.Confirm(r.Context(), id)
	}))
	r.Post("/appointments/{id}/start", h.transitionHandler(func(r *http.Request, id uuid.UUID) (Appointment, error) {
		return h.manager.Start(r.Context(), id)
	}))
	r.Post("/appointments/{id}/complete", h.transitionHandler(func(r *http.Request, id uuid.UUID) (Appointment, error) {
		return h.manager.Complete(r.Context(), id)
	}))
	r.Post("/appointments/{id}/no-show", h.transitionHandler(func(r *http.Request, id uuid.UUID) (Appointment, error) {
		return h.manager.MarkNoShow(r.Context(), id)
	}))
	r.Post("/appointments/{id}/cancel", h.CancelAppointment)
	r.Put("/appointments/{id}/schedule", h.RescheduleAppointment)
}

type bookingPayload struct {
	StaffID        string `json:"staff_id"`
	ServiceID      string `json:"service_id"`
	ClientID       string `json:"client_id"`
	StartsAt       string `json:"starts_at"`
	IdempotencyKey string `json:"idempotency_key"`
}

// CreateBooking handles POST /bookings. An absent or "any" staff_id books
// the least recently booked available staff member.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var payload bookingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, validationError("invalid request body"))
		return
	}
	req := BookingRequest{
		ClientID:       payload.ClientID,
		IdempotencyKey: payload.IdempotencyKey,
	}
	if payload.StaffID != "" && payload.StaffID != "any" {
		id, err := uuid.Parse(payload.StaffID)
		if err != nil {
			h.writeError(w, validationError("staff_id must be a uuid or \"any\""))
			return
		}
		req.StaffID = id
	}
	serviceID, err := uuid.Parse(payload.ServiceID)
	if err != nil {
		h.writeError(w, validationError("service_id must be a uuid"))
		return
	}
	req.ServiceID = serviceID
	if payload.StartsAt != "" {
		startsAt, err := time.Parse(time.RFC3339, payload.StartsAt)
		if err != nil {
			h.writeError(w, validationError("starts_at must be RFC 3339"))
			return
		}
		req.StartsAt = startsAt
	}

	appt, err := h.manager.Book(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, appt)
}

type checkPayload struct {
	StaffID   string `json:"staff_id"`
	ServiceID string `json:"service_id"`
	StartsAt  string `json:"starts_at"`
	ExcludeID string `json:"exclude_id"`
}

type checkResponse struct {
	OK             bool        `json:"ok"`
	OutOfHours     bool        `json:"out_of_hours,omitempty"`
	ConflictingIDs []uuid.UUID `json:"conflicting_ids,omitempty"`
}

// CheckBooking handles POST /bookings/check, the advisory pre-validation
// used by UIs. The result may be stale by the time of the real commit.
func (h *Handler) CheckBooking(w http.ResponseWriter, r *http.Request) {
	var payload checkPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, validationError("invalid request body"))
		return
	}
	staffID, err := uuid.Parse(payload.StaffID)
	if err != nil {
		h.writeError(w, validationError("staff_id must be a uuid"))
		return
	}
	serviceID, err := uuid.Parse(payload.ServiceID)
	if err != nil {
		h.writeError(w, validationError("service_id must be a uuid"))
		return
	}
	startsAt, err := time.Parse(time.RFC3339, payload.StartsAt)
	if err != nil {
		h.writeError(w, validationError("starts_at must be RFC 3339"))
		return
	}
	excludeID := uuid.Nil
	if payload.ExcludeID != "" {
		if excludeID, err = uuid.Parse(payload.ExcludeID); err != nil {
			h.writeError(w, validationError("exclude_id must be a uuid"))
			return
		}
	}

	res, err := h.manager.Check(r.Context(), staffID, serviceID, startsAt, excludeID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, checkResponse{
		OK:             res.OK,
		OutOfHours:     res.OutOfHours,
		ConflictingIDs: res.ConflictingIDs,
	})
}

type slotsResponse struct {
	Slots []time.Time `json:"slots"`
}

// ListSlots handles GET /staff/{staffID}/slots?date=&service_id=&limit=.
// A staffID of "any" merges slots across all active staff.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	serviceID, err := uuid.Parse(r.URL.Query().Get("service_id"))
	if err != nil {
		h.writeError(w, validationError("service_id must be a uuid"))
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, validationError("date must be YYYY-MM-DD"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			h.writeError(w, validationError("limit must be an integer"))
			return
		}
	}

	var slots []time.Time
	if raw := chi.URLParam(r, "staffID"); raw == "any" {
		slots, err = h.manager.AnySlots(r.Context(), date, serviceID, limit)
	} else {
		staffID, perr := uuid.Parse(raw)
		if perr != nil {
			h.writeError(w, validationError("staff id must be a uuid or \"any\""))
			return
		}
		slots, err = h.manager.StaffSlots(r.Context(), staffID, date, serviceID, limit)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, slotsResponse{Slots: slots})
}

// GetAppointment handles GET /appointments/{id}.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, validationError("appointment id must be a uuid"))
		return
	}
	appt, err := h.manager.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) transitionHandler(fn func(r *http.Request, id uuid.UUID) (Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			h.writeError(w, validationError("appointment id must be a uuid"))
			return
		}
		appt, err := fn(r, id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, appt)
	}
}

// CancelAppointment handles POST /appointments/{id}/cancel with an optional
// {"reason": ...} body.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, validationError("appointment id must be a uuid"))
		return
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		// body is optional; decode errors on an empty body are fine
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	appt, err := h.manager.Cancel(r.Context(), id, payload.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

// RescheduleAppointment handles PUT /appointments/{id}/schedule.
func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, validationError("appointment id must be a uuid"))
		return
	}
	var payload struct {
		StartsAt string `json:"starts_at"`
		StaffID  string `json:"staff_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, validationError("invalid request body"))
		return
	}
	startsAt, err := time.Parse(time.RFC3339, payload.StartsAt)
	if err != nil {
		h.writeError(w, validationError("starts_at must be RFC 3339"))
		return
	}
	newStaff := uuid.Nil
	if payload.StaffID != "" {
		if newStaff, err = uuid.Parse(payload.StaffID); err != nil {
			h.writeError(w, validationError("staff_id must be a uuid"))
			return
		}
	}
	appt, err := h.manager.Reschedule(r.Context(), id, startsAt, newStaff)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

type errorResponse struct {
	Error          string      `json:"error"`
	Kind           Kind        `json:"kind"`
	ConflictingIDs []uuid.UUID `json:"conflicting_ids,omitempty"`
	Alternatives   []time.Time `json:"alternatives,omitempty"`
	Retryable      bool        `json:"retryable"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		h.logger.Error("unhandled booking error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	status := http.StatusInternalServerError
	switch e.Kind {
	case KindValidation:
		status = http.StatusBadRequest
	case KindNotFound:
		status = http.StatusNotFound
	case KindConflict:
		status = http.StatusConflict
	case KindOutOfHours, KindInvalidTransition:
		status = http.StatusUnprocessableEntity
	case KindBusy, KindUnavailable:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("booking request failed", "kind", e.Kind, "error", err)
	}
	h.writeJSON(w, status, errorResponse{
		Error:          e.Message,
		Kind:           e.Kind,
		ConflictingIDs: e.ConflictingIDs,
		Alternatives:   e.Alternatives,
		Retryable:      e.Retryable(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
