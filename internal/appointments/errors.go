package appointments

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies booking failures so callers can decide whether to retry,
// pick another time, or give up.
type Kind string

const (
	// KindOutOfHours: the interval falls outside working hours or into time
	// off. Not retryable without a different time.
	KindOutOfHours Kind = "out_of_hours"
	// KindConflict: the buffered interval overlaps another active
	// appointment. Retryable with one of the suggested alternatives.
	KindConflict Kind = "conflict"
	// KindInvalidTransition: the state machine rejected the move.
	KindInvalidTransition Kind = "invalid_transition"
	// KindBusy: the per-staff lock timed out. Retryable immediately.
	KindBusy Kind = "busy"
	// KindNotFound: unknown appointment, staff, or service id.
	KindNotFound Kind = "not_found"
	// KindUnavailable: the storage layer is down. Retryable with backoff.
	KindUnavailable Kind = "unavailable"
	// KindValidation: the request itself is malformed.
	KindValidation Kind = "validation"
)

// Error is the typed failure returned by every booking operation.
type Error struct {
	Kind    Kind
	Message string

	// Populated for KindConflict.
	ConflictingIDs []uuid.UUID
	Alternatives   []time.Time

	// Populated for KindInvalidTransition.
	From Status
	To   Status

	err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("appointments: ")
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.err != nil {
		fmt.Fprintf(&b, ": %v", e.err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.err }

// Retryable reports whether the same request can sensibly be retried
// unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindBusy || e.Kind == KindUnavailable
}

// AsError unwraps err into a typed booking error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is a booking error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func notFoundError(what string, id uuid.UUID) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s", what, id)}
}

func busyError(err error) *Error {
	return &Error{Kind: KindBusy, Message: "staff calendar is locked by another request", err: err}
}

func unavailableError(op string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: op, err: err}
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func invalidTransitionError(from, to Status, msg string) *Error {
	if msg == "" {
		msg = fmt.Sprintf("cannot move %s appointment to %s", from, to)
	}
	return &Error{Kind: KindInvalidTransition, Message: msg, From: from, To: to}
}
