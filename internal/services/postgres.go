package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCatalog reads the service catalog from the relational database.
type PostgresCatalog struct {
	db querier
}

func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	if pool == nil {
		panic("services: pgx pool required")
	}
	return &PostgresCatalog{db: pool}
}

func newPostgresCatalogWithQuerier(q querier) *PostgresCatalog {
	return &PostgresCatalog{db: q}
}

// Service implements Catalog.
func (c *PostgresCatalog) Service(ctx context.Context, id uuid.UUID) (Service, error) {
	var (
		svc         Service
		durationMin int
		bufferMin   int
	)
	err := c.db.QueryRow(ctx, `
		SELECT id, name, duration_mins, buffer_mins
		FROM services
		WHERE id = $1 AND active
	`, id).Scan(&svc.ID, &svc.Name, &durationMin, &bufferMin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Service{}, ErrServiceNotFound
		}
		return Service{}, fmt.Errorf("services: load service: %w", err)
	}
	svc.Duration = time.Duration(durationMin) * time.Minute
	svc.Buffer = time.Duration(bufferMin) * time.Minute
	return svc, nil
}
