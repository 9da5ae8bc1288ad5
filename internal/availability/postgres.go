package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mariobeauty/salon-scheduling/internal/timerange"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads staff schedules from the relational database.
type PostgresStore struct {
	db querier
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(q querier) *PostgresStore {
	return &PostgresStore{db: q}
}

// Day resolves the working windows and time off for one staff member and date.
func (s *PostgresStore) Day(ctx context.Context, staffID uuid.UUID, date time.Time) (Day, error) {
	var tzName string
	err := s.db.QueryRow(ctx,
		`SELECT timezone FROM staff WHERE id = $1 AND active`, staffID,
	).Scan(&tzName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Day{}, ErrStaffNotFound
		}
		return Day{}, fmt.Errorf("availability: load staff: %w", err)
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Day{}, fmt.Errorf("availability: staff timezone %q: %w", tzName, err)
	}
	local := date.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	day := Day{StaffID: staffID, Date: midnight}

	rows, err := s.db.Query(ctx, `
		SELECT start_time, end_time, break_start, break_end
		FROM staff_working_hours
		WHERE staff_id = $1 AND weekday = $2 AND is_available
		ORDER BY start_time
	`, staffID, int(midnight.Weekday()))
	if err != nil {
		return Day{}, fmt.Errorf("availability: load working hours: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var start, end, breakStart, breakEnd pgtype.Time
		if err := rows.Scan(&start, &end, &breakStart, &breakEnd); err != nil {
			return Day{}, fmt.Errorf("availability: scan working hours: %w", err)
		}
		sh := shift{start: asOffset(start), end: asOffset(end)}
		if breakStart.Valid && breakEnd.Valid {
			sh.breakStart = asOffset(breakStart)
			sh.breakEnd = asOffset(breakEnd)
		}
		day.Windows = append(day.Windows, sh.windows(midnight)...)
	}
	if err := rows.Err(); err != nil {
		return Day{}, fmt.Errorf("availability: iterate working hours: %w", err)
	}

	bounds := day.Bounds()
	if !bounds.IsValid() {
		return day, nil
	}

	offRows, err := s.db.Query(ctx, `
		SELECT starts_at, ends_at
		FROM staff_time_off
		WHERE staff_id = $1 AND starts_at < $2 AND ends_at > $3
		ORDER BY starts_at
	`, staffID, bounds.End, bounds.Start)
	if err != nil {
		return Day{}, fmt.Errorf("availability: load time off: %w", err)
	}
	defer offRows.Close()
	for offRows.Next() {
		var startsAt, endsAt time.Time
		if err := offRows.Scan(&startsAt, &endsAt); err != nil {
			return Day{}, fmt.Errorf("availability: scan time off: %w", err)
		}
		day.TimeOff = append(day.TimeOff, timerange.New(startsAt, endsAt))
	}
	if err := offRows.Err(); err != nil {
		return Day{}, fmt.Errorf("availability: iterate time off: %w", err)
	}

	return day, nil
}

// StaffIDs lists active staff members.
func (s *PostgresStore) StaffIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM staff WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("availability: list staff: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("availability: scan staff id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func asOffset(t pgtype.Time) time.Duration {
	if !t.Valid {
		return 0
	}
	return time.Duration(t.Microseconds) * time.Microsecond
}
