// Package store defines the event store gateway. Every other subsystem
// reaches durable storage through this narrow contract, so any concrete
// engine (relational, document, log-structured) can sit behind it and tests
// run against the in-memory implementation.
package store

import (
	"context"

	"github.com/google/uuid"

	"bitacora/internal/audit"
	dErrors "bitacora/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across in-memory and
// postgres implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "event not found")

// EventStore is the gateway contract for durable audit events.
type EventStore interface {
	Create(ctx context.Context, event audit.Event) error
	FindByID(ctx context.Context, id uuid.UUID) (audit.Event, error)
	FindMany(ctx context.Context, filter audit.Filter, page, pageSize int) (audit.Page, error)
	Count(ctx context.Context, filter audit.Filter) (int, error)
	Update(ctx context.Context, event audit.Event) error
}

// DefaultPageSize bounds unpaginated queries.
const DefaultPageSize = 50

// Normalize clamps paging arguments to sane values.
func Normalize(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}

// TotalPages computes the page count for a result set.
func TotalPages(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
