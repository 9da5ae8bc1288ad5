package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCatalog(t *testing.T) {
	catalog := NewMemoryCatalog()
	manicure := catalog.Add("Classic Manicure", 45*time.Minute, 15*time.Minute)
	quickFix := catalog.Add("Polish Change", 15*time.Minute, -1)

	got, err := catalog.Service(context.Background(), manicure.ID)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, got.Duration)
	assert.Equal(t, 15*time.Minute, got.Buffer)

	got, err = catalog.Service(context.Background(), quickFix.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultBuffer, got.Buffer, "negative buffer falls back to the default")

	_, err = catalog.Service(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestPostgresCatalog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	catalog := newPostgresCatalogWithQuerier(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, name, duration_mins, buffer_mins").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "duration_mins", "buffer_mins"}).
			AddRow(id, "Gel Pedicure", 60, 15))

	svc, err := catalog.Service(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Gel Pedicure", svc.Name)
	assert.Equal(t, time.Hour, svc.Duration)
	assert.Equal(t, 15*time.Minute, svc.Buffer)

	mock.ExpectQuery("SELECT id, name, duration_mins, buffer_mins").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = catalog.Service(context.Background(), id)
	assert.ErrorIs(t, err, ErrServiceNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
