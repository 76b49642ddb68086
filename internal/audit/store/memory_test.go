package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bitacora/internal/audit"
)

// =============================================================================
// In-Memory Event Store Test Suite
// =============================================================================
// Justification for unit tests: the in-memory store is the reference
// implementation of the gateway filter semantics; every other component's
// tests lean on it behaving exactly like Filter.Matches plus pagination.

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryEventStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryEventStore()
}

func (s *MemoryStoreSuite) seed(events ...audit.Event) {
	for i := range events {
		if events[i].ID == uuid.Nil {
			events[i].ID = uuid.New()
		}
		s.Require().NoError(s.store.Create(context.Background(), events[i]))
	}
}

func (s *MemoryStoreSuite) TestFindByID() {
	ctx := context.Background()

	s.Run("missing event returns not found", func() {
		_, err := s.store.FindByID(ctx, uuid.New())
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("created event is retrievable", func() {
		event := audit.Event{ID: uuid.New(), Type: audit.EventLoginSuccess}
		s.Require().NoError(s.store.Create(ctx, event))

		got, err := s.store.FindByID(ctx, event.ID)
		s.NoError(err)
		s.Equal(event.ID, got.ID)
	})
}

func (s *MemoryStoreSuite) TestFindMany_Filtering() {
	ctx := context.Background()
	now := time.Now()

	s.seed(
		audit.Event{Type: audit.EventLoginFailure, Category: audit.CategoryAuthentication, Severity: audit.SeverityWarning, ActorID: "alice", Timestamp: now},
		audit.Event{Type: audit.EventLoginFailure, Category: audit.CategoryAuthentication, Severity: audit.SeverityWarning, ActorID: "bob", Timestamp: now.Add(-time.Hour)},
		audit.Event{Type: audit.EventRecordCreated, Category: audit.CategoryUsers, Severity: audit.SeverityInfo, ActorID: "alice", Timestamp: now.Add(-2 * time.Hour)},
	)

	s.Run("filters by type and actor", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{
			Types:    []audit.EventType{audit.EventLoginFailure},
			ActorIDs: []string{"alice"},
		}, 1, 10)
		s.NoError(err)
		s.Equal(1, page.Total)
		s.Equal("alice", page.Data[0].ActorID)
	})

	s.Run("time range bounds are inclusive of interior", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{
			From: now.Add(-90 * time.Minute),
			To:   now.Add(-30 * time.Minute),
		}, 1, 10)
		s.NoError(err)
		s.Equal(1, page.Total)
		s.Equal("bob", page.Data[0].ActorID)
	})

	s.Run("empty filter matches everything", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{}, 1, 10)
		s.NoError(err)
		s.Equal(3, page.Total)
	})
}

func (s *MemoryStoreSuite) TestFindMany_ExcludeArchived() {
	ctx := context.Background()

	s.seed(
		audit.Event{Type: audit.EventLoginSuccess, State: audit.StateProcessed},
		audit.Event{Type: audit.EventLoginSuccess, State: audit.StateArchived},
	)

	page, err := s.store.FindMany(ctx, audit.Filter{ExcludeArchived: true}, 1, 10)
	s.NoError(err)
	s.Equal(1, page.Total)
	s.Equal(audit.StateProcessed, page.Data[0].State)
}

func (s *MemoryStoreSuite) TestFindMany_SortAndPaginate() {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.seed(audit.Event{
			Type:      audit.EventRecordCreated,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}

	s.Run("default sort is newest first", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{}, 1, 2)
		s.NoError(err)
		s.Len(page.Data, 2)
		s.Equal(base.Add(4*time.Hour), page.Data[0].Timestamp)
		s.Equal(5, page.Total)
		s.Equal(3, page.TotalPages)
	})

	s.Run("ascending sort flips the order", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{SortDirection: audit.SortAsc}, 1, 2)
		s.NoError(err)
		s.Equal(base, page.Data[0].Timestamp)
	})

	s.Run("last page is short", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{}, 3, 2)
		s.NoError(err)
		s.Len(page.Data, 1)
	})

	s.Run("page past the end is empty", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{}, 9, 2)
		s.NoError(err)
		s.Empty(page.Data)
	})
}

func (s *MemoryStoreSuite) TestFindMany_Projection() {
	ctx := context.Background()

	s.seed(audit.Event{
		Type:        audit.EventExportPerformed,
		Category:    audit.CategoryDataExport,
		Severity:    audit.SeverityInfo,
		Description: "nightly export",
		ActorID:     "svc-export",
		Payload:     map[string]any{"rows": 42},
	})

	page, err := s.store.FindMany(ctx, audit.Filter{Fields: []string{"description"}}, 1, 10)
	s.NoError(err)
	s.Require().Len(page.Data, 1)

	got := page.Data[0]
	s.Equal("nightly export", got.Description)
	s.Empty(got.ActorID, "unselected fields are dropped")
	s.Nil(got.Payload)
	s.NotEqual(uuid.Nil, got.ID, "identity always survives projection")
	s.Equal(audit.EventExportPerformed, got.Type)
}

func (s *MemoryStoreSuite) TestUpdate() {
	ctx := context.Background()

	s.Run("missing event returns not found", func() {
		err := s.store.Update(ctx, audit.Event{ID: uuid.New()})
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("update replaces the stored record", func() {
		event := audit.Event{ID: uuid.New(), Description: "before"}
		s.Require().NoError(s.store.Create(ctx, event))

		event.Description = "after"
		s.Require().NoError(s.store.Update(ctx, event))

		got, err := s.store.FindByID(ctx, event.ID)
		s.NoError(err)
		s.Equal("after", got.Description)
	})
}

func (s *MemoryStoreSuite) TestCount() {
	ctx := context.Background()
	s.seed(
		audit.Event{Severity: audit.SeverityCritical},
		audit.Event{Severity: audit.SeverityCritical},
		audit.Event{Severity: audit.SeverityInfo},
	)

	count, err := s.store.Count(ctx, audit.Filter{Severities: []audit.Severity{audit.SeverityCritical}})
	s.NoError(err)
	s.Equal(2, count)
}
