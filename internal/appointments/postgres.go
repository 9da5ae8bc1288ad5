package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mariobeauty/salon-scheduling/internal/events"
	"github.com/mariobeauty/salon-scheduling/internal/timerange"
	"github.com/mariobeauty/salon-scheduling/pkg/logging"
)

// SQLSTATE codes the store translates into domain errors.
const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"
	codeLockNotAvailable   = "55P03"
)

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists appointments in Postgres. Per-staff serialization
// uses a transaction-scoped advisory lock on the staff id, and the btree_gist
// exclusion constraint on buffered intervals backstops the conflict check.
type PostgresStore struct {
	pool        pgxPool
	lockTimeout time.Duration
	logger      *logging.Logger
}

// NewPostgresStore creates a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool, lockTimeout time.Duration, logger *logging.Logger) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return newPostgresStoreWithPool(pool, lockTimeout, logger)
}

func newPostgresStoreWithPool(pool pgxPool, lockTimeout time.Duration, logger *logging.Logger) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresStore{pool: pool, lockTimeout: lockTimeout, logger: logger.Component("appointments")}
}

const apptColumns = `id, staff_id, service_id, client_id, starts_at, ends_at, buffer_mins, status, version, idempotency_key, cancellation_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (Appointment, error) {
	var (
		a          Appointment
		bufferMins int
		status     string
		idemKey    pgtype.Text
		reason     pgtype.Text
	)
	err := row.Scan(&a.ID, &a.StaffID, &a.ServiceID, &a.ClientID, &a.StartsAt, &a.EndsAt,
		&bufferMins, &status, &a.Version, &idemKey, &reason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Appointment{}, err
	}
	a.Buffer = time.Duration(bufferMins) * time.Minute
	a.Status = Status(status)
	a.IdempotencyKey = idemKey.String
	a.CancellationReason = reason.String
	a.StartsAt = a.StartsAt.UTC()
	a.EndsAt = a.EndsAt.UTC()
	return a, nil
}

// GetByID loads one appointment.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return getAppointment(ctx, s.pool, id)
}

func getAppointment(ctx context.Context, q events.Querier, id uuid.UUID) (Appointment, error) {
	row := q.QueryRow(ctx, `SELECT `+apptColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, notFoundError("appointment", id)
		}
		return Appointment{}, unavailableError("load appointment", err)
	}
	return appt, nil
}

// FindByIdempotencyKey resolves a key to its committed appointment.
func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+apptColumns+` FROM appointments WHERE idempotency_key = $1`, key)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, &Error{Kind: KindNotFound, Message: "no appointment for idempotency key"}
		}
		return Appointment{}, unavailableError("load appointment by key", err)
	}
	return appt, nil
}

// ActiveInRange lists calendar-blocking appointments whose buffered interval
// touches the window.
func (s *PostgresStore) ActiveInRange(ctx context.Context, staffID uuid.UUID, window timerange.Range) ([]Appointment, error) {
	return activeInRange(ctx, s.pool, staffID, window)
}

func activeInRange(ctx context.Context, q events.Querier, staffID uuid.UUID, window timerange.Range) ([]Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE staff_id = $1
		  AND status = ANY($2)
		  AND starts_at < $3
		  AND ends_at + buffer_mins * interval '1 minute' > $4
		ORDER BY starts_at
	`, staffID, statusStrings(ActiveStatuses), window.End, window.Start)
	if err != nil {
		return nil, unavailableError("load active appointments", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, unavailableError("scan appointment", err)
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailableError("iterate appointments", err)
	}
	return appts, nil
}

// StaffLeastRecentlyBooked implements the "any available" priority order.
func (s *PostgresStore) StaffLeastRecentlyBooked(ctx context.Context, candidates []uuid.UUID) ([]uuid.UUID, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT s.id
		FROM staff s
		LEFT JOIN appointments a ON a.staff_id = s.id
		WHERE s.id = ANY($1)
		GROUP BY s.id
		ORDER BY max(a.created_at) ASC NULLS FIRST, s.id
	`, candidates)
	if err != nil {
		return nil, unavailableError("order staff", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, unavailableError("scan staff id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InStaffTx opens a transaction, takes the advisory lock for the staff
// member, and runs fn. SET LOCAL lock_timeout bounds the wait so a stuck
// writer surfaces as Busy instead of queueing callers behind it.
func (s *PostgresStore) InStaffTx(ctx context.Context, staffID uuid.UUID, fn func(tx Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailableError("begin transaction", err)
	}
	defer func() {
		if rbErr := pgtx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", "error", rbErr, "staff_id", staffID)
		}
	}()

	timeoutMs := s.lockTimeout.Milliseconds()
	if _, err := pgtx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeoutMs)); err != nil {
		return unavailableError("set lock timeout", err)
	}
	if _, err := pgtx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, staffID); err != nil {
		return translatePgError("acquire staff lock", err)
	}

	if err := fn(&postgresTx{tx: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return translatePgError("commit booking", err)
	}
	return nil
}

// postgresTx adapts pgx.Tx to the Tx contract.
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t *postgresTx) ActiveInRange(ctx context.Context, staffID uuid.UUID, window timerange.Range) ([]Appointment, error) {
	return activeInRange(ctx, t.tx, staffID, window)
}

func (t *postgresTx) Insert(ctx context.Context, appt *Appointment) error {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, staff_id, service_id, client_id, starts_at, ends_at, buffer_mins, status, version, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, appt.ID, appt.StaffID, appt.ServiceID, appt.ClientID, appt.StartsAt, appt.EndsAt,
		int(appt.Buffer/time.Minute), string(appt.Status), appt.Version, nullableText(appt.IdempotencyKey))
	if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return translatePgError("insert appointment", err)
	}
	return nil
}

func (t *postgresTx) UpdateSchedule(ctx context.Context, appt *Appointment) error {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET staff_id = $2, starts_at = $3, ends_at = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $5
		RETURNING version, updated_at
	`, appt.ID, appt.StaffID, appt.StartsAt, appt.EndsAt, appt.Version)
	if err := row.Scan(&appt.Version, &appt.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFoundError("appointment", appt.ID)
		}
		return translatePgError("update schedule", err)
	}
	return nil
}

func (t *postgresTx) UpdateStatus(ctx context.Context, appt *Appointment) error {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, cancellation_reason = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $4
		RETURNING version, updated_at
	`, appt.ID, string(appt.Status), nullableText(appt.CancellationReason), appt.Version)
	if err := row.Scan(&appt.Version, &appt.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFoundError("appointment", appt.ID)
		}
		return translatePgError("update status", err)
	}
	return nil
}

func (t *postgresTx) AppendEvent(ctx context.Context, env events.Envelope) error {
	outbox := events.NewOutboxStore(t.tx)
	return outbox.Append(ctx, t.tx, env)
}

// translatePgError maps Postgres failure modes onto the error taxonomy. The
// exclusion constraint firing means a competing writer slipped past the
// advisory check; the caller re-checks and reports Conflict with the real
// competing ids.
func translatePgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable:
			return busyError(err)
		case codeExclusionViolation:
			return &Error{Kind: KindConflict, Message: "buffered interval overlaps an existing appointment", err: err}
		case codeUniqueViolation:
			return errDuplicateIdempotencyKey
		}
	}
	return unavailableError(op, err)
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
