package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"bitacora/internal/audit"
)

// InMemoryEventStore keeps events in a mutex-guarded map. It is the test
// double for the gateway and intentionally favors clarity over performance.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID]audit.Event
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[uuid.UUID]audit.Event)}
}

func (s *InMemoryEventStore) Create(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return nil
}

func (s *InMemoryEventStore) FindByID(_ context.Context, id uuid.UUID) (audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if event, ok := s.events[id]; ok {
		return event, nil
	}
	return audit.Event{}, ErrNotFound
}

func (s *InMemoryEventStore) FindMany(_ context.Context, filter audit.Filter, page, pageSize int) (audit.Page, error) {
	page, pageSize = Normalize(page, pageSize)

	s.mu.RLock()
	matched := make([]audit.Event, 0)
	for _, event := range s.events {
		if filter.Matches(event) {
			matched = append(matched, event)
		}
	}
	s.mu.RUnlock()

	sortEvents(matched, filter.SortField, filter.SortDirection)

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	data := matched[start:end]
	if len(filter.Fields) > 0 {
		projected := make([]audit.Event, len(data))
		for i, event := range data {
			projected[i] = project(event, filter.Fields)
		}
		data = projected
	}

	return audit.Page{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: TotalPages(total, pageSize),
	}, nil
}

func (s *InMemoryEventStore) Count(_ context.Context, filter audit.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, event := range s.events {
		if filter.Matches(event) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryEventStore) Update(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; !ok {
		return ErrNotFound
	}
	s.events[event.ID] = event
	return nil
}

// sortEvents orders results by the requested field, defaulting to newest
// first by event timestamp.
func sortEvents(events []audit.Event, field string, dir audit.SortDirection) {
	if field == "" {
		field = "timestamp"
	}
	if dir == "" {
		dir = audit.SortDesc
	}

	less := func(a, b audit.Event) bool {
		switch field {
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		case "severity":
			return a.Severity.Rank() < b.Severity.Rank()
		default:
			return a.Timestamp.Before(b.Timestamp)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if dir == audit.SortAsc {
			return less(events[i], events[j])
		}
		return less(events[j], events[i])
	})
}

// project keeps only the named top-level fields; identity and classification
// always survive so results stay addressable.
func project(e audit.Event, fields []string) audit.Event {
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}

	out := audit.Event{
		ID:        e.ID,
		Type:      e.Type,
		Category:  e.Category,
		Severity:  e.Severity,
		State:     e.State,
		Timestamp: e.Timestamp,
	}
	if keep["correlation_id"] {
		out.CorrelationID = e.CorrelationID
	}
	if keep["transaction_id"] {
		out.TransactionID = e.TransactionID
	}
	if keep["description"] {
		out.Description = e.Description
	}
	if keep["detail"] {
		out.Detail = e.Detail
	}
	if keep["payload"] {
		out.Payload = e.Payload
	}
	if keep["actor_id"] {
		out.ActorID = e.ActorID
	}
	if keep["actor_name"] {
		out.ActorName = e.ActorName
	}
	if keep["tenant_id"] {
		out.TenantID = e.TenantID
	}
	if keep["created_at"] {
		out.CreatedAt = e.CreatedAt
	}
	if keep["integrity_digest"] {
		out.IntegrityDigest = e.IntegrityDigest
	}
	if keep["retention_days"] {
		out.RetentionDays = e.RetentionDays
	}
	return out
}
