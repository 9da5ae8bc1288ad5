package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pgTime(d time.Duration) pgtype.Time {
	return pgtype.Time{Microseconds: d.Microseconds(), Valid: true}
}

func TestPostgresStoreDay(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	staffID := uuid.New()

	mock.ExpectQuery("SELECT timezone FROM staff").
		WithArgs(staffID).
		WillReturnRows(pgxmock.NewRows([]string{"timezone"}).AddRow("UTC"))
	mock.ExpectQuery("SELECT start_time, end_time, break_start, break_end").
		WithArgs(staffID, int(time.Monday)).
		WillReturnRows(pgxmock.NewRows([]string{"start_time", "end_time", "break_start", "break_end"}).
			AddRow(pgTime(9*time.Hour), pgTime(17*time.Hour), pgtype.Time{}, pgtype.Time{}))
	mock.ExpectQuery("SELECT starts_at, ends_at").
		WithArgs(staffID, utc(17, 0), utc(9, 0)).
		WillReturnRows(pgxmock.NewRows([]string{"starts_at", "ends_at"}).
			AddRow(utc(12, 0), utc(12, 30)))

	day, err := store.Day(context.Background(), staffID, monday)
	require.NoError(t, err)

	require.Len(t, day.Windows, 1)
	assert.Equal(t, utc(9, 0), day.Windows[0].Start)
	assert.Equal(t, utc(17, 0), day.Windows[0].End)
	require.Len(t, day.TimeOff, 1)
	assert.Equal(t, utc(12, 0), day.TimeOff[0].Start)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDayClosed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	staffID := uuid.New()

	mock.ExpectQuery("SELECT timezone FROM staff").
		WithArgs(staffID).
		WillReturnRows(pgxmock.NewRows([]string{"timezone"}).AddRow("UTC"))
	mock.ExpectQuery("SELECT start_time, end_time, break_start, break_end").
		WithArgs(staffID, int(time.Monday)).
		WillReturnRows(pgxmock.NewRows([]string{"start_time", "end_time", "break_start", "break_end"}))

	day, err := store.Day(context.Background(), staffID, monday)
	require.NoError(t, err)
	assert.True(t, day.Closed())
	// no time-off query for a closed day
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDayUnknownStaff(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	staffID := uuid.New()

	mock.ExpectQuery("SELECT timezone FROM staff").
		WithArgs(staffID).
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Day(context.Background(), staffID, monday)
	assert.ErrorIs(t, err, ErrStaffNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreStaffIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT id FROM staff").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a).AddRow(b))

	ids, err := store.StaffIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
