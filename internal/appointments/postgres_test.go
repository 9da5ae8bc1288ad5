package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

var apptColumnNames = []string{
	"id", "staff_id", "service_id", "client_id", "starts_at", "ends_at", "buffer_mins",
	"status", "version", "idempotency_key", "cancellation_reason", "created_at", "updated_at",
}

func appointmentRow(appt Appointment) *pgxmock.Rows {
	return pgxmock.NewRows(apptColumnNames).AddRow(
		appt.ID, appt.StaffID, appt.ServiceID, appt.ClientID, appt.StartsAt, appt.EndsAt,
		int(appt.Buffer/time.Minute), string(appt.Status), appt.Version,
		pgtype.Text{String: appt.IdempotencyKey, Valid: appt.IdempotencyKey != ""},
		pgtype.Text{String: appt.CancellationReason, Valid: appt.CancellationReason != ""},
		appt.CreatedAt, appt.UpdatedAt,
	)
}

func TestPostgresStoreGetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithPool(mock, time.Second, nil)

	want := newAppointment(uuid.New(), at(10, 0), 45*time.Minute, 15*time.Minute)
	want.IdempotencyKey = "key-1"
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id").
		WithArgs(want.ID).
		WillReturnRows(appointmentRow(want))

	got, err := store.GetByID(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, 15*time.Minute, got.Buffer)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.Equal(t, "key-1", got.IdempotencyKey)

	missing := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id").
		WithArgs(missing).
		WillReturnRows(pgxmock.NewRows(apptColumnNames))
	_, err = store.GetByID(context.Background(), missing)
	assert.True(t, IsKind(err, KindNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreActiveInRange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithPool(mock, time.Second, nil)

	staffID := uuid.New()
	window := timerange.New(at(7, 0), at(19, 0))
	appt := newAppointment(staffID, at(10, 0), 45*time.Minute, 15*time.Minute)
	mock.ExpectQuery(`(?s)SELECT (.+) FROM appointments`).
		WithArgs(staffID, pgxmock.AnyArg(), window.End, window.Start).
		WillReturnRows(appointmentRow(appt))

	appts, err := store.ActiveInRange(context.Background(), staffID, window)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, appt.ID, appts[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreInStaffTxCommit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithPool(mock, 3*time.Second, nil)

	staffID := uuid.New()
	appt := newAppointment(staffID, at(10, 0), 45*time.Minute, 15*time.Minute)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(staffID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(appt.ID, appt.StaffID, appt.ServiceID, appt.ClientID, appt.StartsAt, appt.EndsAt,
			15, string(StatusScheduled), appt.Version, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err = store.InStaffTx(context.Background(), staffID, func(tx Tx) error {
		return tx.Insert(context.Background(), &appt)
	})
	require.NoError(t, err)
	assert.Equal(t, now, appt.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLockTimeoutIsBusy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithPool(mock, time.Second, nil)

	staffID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(staffID).
		WillReturnError(&pgconn.PgError{Code: codeLockNotAvailable})
	mock.ExpectRollback()

	err = store.InStaffTx(context.Background(), staffID, func(Tx) error {
		t.Fatal("callback must not run when the lock is unavailable")
		return nil
	})
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindBusy, e.Kind)
	assert.True(t, e.Retryable())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreExclusionViolationIsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithPool(mock, time.Second, nil)

	staffID := uuid.New()
	appt := newAppointment(staffID, at(10, 0), 45*time.Minute, 15*time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(staffID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: codeExclusionViolation})
	mock.ExpectRollback()

	err = store.InStaffTx(context.Background(), staffID, func(tx Tx) error {
		return tx.Insert(context.Background(), &appt)
	})
	assert.True(t, IsKind(err, KindConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDuplicateIdempotencyKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithPool(mock, time.Second, nil)

	staffID := uuid.New()
	appt := newAppointment(staffID, at(10, 0), 45*time.Minute, 0)
	appt.IdempotencyKey = "dup"

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(staffID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation})
	mock.ExpectRollback()

	err = store.InStaffTx(context.Background(), staffID, func(tx Tx) error {
		return tx.Insert(context.Background(), &appt)
	})
	assert.True(t, errors.Is(err, errDuplicateIdempotencyKey))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreStaffLeastRecentlyBooked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithPool(mock, time.Second, nil)

	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT s.id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(b).AddRow(a))

	order, err := store.StaffLeastRecentlyBooked(context.Background(), []uuid.UUID{a, b})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b, a}, order)
	require.NoError(t, mock.ExpectationsWereMet())
}
