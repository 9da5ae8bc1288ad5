// Package services exposes the service catalog to the booking engine: the
// duration and trailing buffer that shape every appointment. Catalog
// management (pricing, descriptions, seeding) lives outside this engine.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBuffer is the trailing cleanup buffer applied when a service row
// doesn't specify one.
const DefaultBuffer = 15 * time.Minute

// ErrServiceNotFound is returned for unknown service ids.
var ErrServiceNotFound = errors.New("services: service not found")

// Service is the slice of the catalog the engine needs. Duration and Buffer
// are immutable per booking once selected.
type Service struct {
	ID       uuid.UUID
	Name     string
	Duration time.Duration
	Buffer   time.Duration
}

// Catalog resolves services by id.
type Catalog interface {
	Service(ctx context.Context, id uuid.UUID) (Service, error)
}

// MemoryCatalog is a map-backed catalog for tests and in-memory mode.
type MemoryCatalog struct {
	mu       sync.RWMutex
	services map[uuid.UUID]Service
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{services: make(map[uuid.UUID]Service)}
}

// Add registers a service, applying DefaultBuffer when none is set, and
// returns it for convenience.
func (c *MemoryCatalog) Add(name string, duration, buffer time.Duration) Service {
	if buffer < 0 {
		buffer = DefaultBuffer
	}
	svc := Service{ID: uuid.New(), Name: name, Duration: duration, Buffer: buffer}
	c.mu.Lock()
	c.services[svc.ID] = svc
	c.mu.Unlock()
	return svc
}

// Service implements Catalog.
func (c *MemoryCatalog) Service(_ context.Context, id uuid.UUID) (Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.services[id]
	if !ok {
		return Service{}, ErrServiceNotFound
	}
	return svc, nil
}
