//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bitacora/internal/audit"
	"bitacora/internal/audit/store"
	pgstore "bitacora/internal/audit/store/postgres"
	"bitacora/pkg/testutil/containers"
)

// =============================================================================
// Postgres Event Store Integration Test Suite
// =============================================================================
// Justification for integration tests: the SQL gateway must agree with the
// in-memory reference on filter translation, pagination math, and payload
// round-tripping through JSONB. Only a real database exercises that.

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *pgstore.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	_, err := s.postgres.DB.ExecContext(context.Background(), pgstore.Schema)
	s.Require().NoError(err)
	s.store = pgstore.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *PostgresStoreSuite) newEvent() audit.Event {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return audit.Event{
		ID:            uuid.New(),
		CorrelationID: uuid.NewString(),
		TransactionID: uuid.NewString(),
		Type:          audit.EventLoginFailure,
		Category:      audit.CategoryAuthentication,
		Severity:      audit.SeverityWarning,
		State:         audit.StatePending,
		Description:   "failed authentication for alice",
		ActorID:       "alice",
		TenantID:      "tenant-1",
		Timestamp:     now,
		CreatedAt:     now,
		Payload: map[string]any{
			"ip_address": "203.0.113.7",
			"attempts":   float64(3),
		},
		IntegrityDigest: "digest",
		RetentionDays:   90,
	}
}

func (s *PostgresStoreSuite) TestCreateAndFindByID() {
	ctx := context.Background()

	s.Run("missing event returns the sentinel", func() {
		_, err := s.store.FindByID(ctx, uuid.New())
		s.ErrorIs(err, store.ErrNotFound)
	})

	s.Run("event round-trips including the jsonb payload", func() {
		event := s.newEvent()
		s.Require().NoError(s.store.Create(ctx, event))

		got, err := s.store.FindByID(ctx, event.ID)
		s.Require().NoError(err)
		s.Equal(event.ID, got.ID)
		s.Equal(event.Description, got.Description)
		s.Equal(event.Payload, got.Payload)
		s.True(event.Timestamp.Equal(got.Timestamp))
		s.Nil(got.ArchivedAt)
		s.Nil(got.ModifiedAt)
	})
}

func (s *PostgresStoreSuite) TestFindMany() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 5; i++ {
		event := s.newEvent()
		event.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			event.ActorID = "bob"
			event.Severity = audit.SeverityInfo
		}
		s.Require().NoError(s.store.Create(ctx, event))
	}

	s.Run("filters translate to sql", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{
			Severities: []audit.Severity{audit.SeverityWarning},
			ActorIDs:   []string{"alice"},
		}, 1, 10)
		s.Require().NoError(err)
		s.Equal(2, page.Total)
	})

	s.Run("time range bounds the result", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{
			From: base.Add(90 * time.Second),
			To:   base.Add(210 * time.Second),
		}, 1, 10)
		s.Require().NoError(err)
		s.Equal(2, page.Total)
	})

	s.Run("default sort is newest first with pagination math", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{}, 1, 2)
		s.Require().NoError(err)
		s.Len(page.Data, 2)
		s.Equal(5, page.Total)
		s.Equal(3, page.TotalPages)
		s.True(page.Data[0].Timestamp.After(page.Data[1].Timestamp))
	})

	s.Run("description search is case-insensitive", func() {
		page, err := s.store.FindMany(ctx, audit.Filter{
			DescriptionContains: "FAILED AUTHENTICATION",
		}, 1, 10)
		s.Require().NoError(err)
		s.Equal(5, page.Total)
	})
}

func (s *PostgresStoreSuite) TestUpdate() {
	ctx := context.Background()

	s.Run("missing event returns the sentinel", func() {
		err := s.store.Update(ctx, s.newEvent())
		s.ErrorIs(err, store.ErrNotFound)
	})

	s.Run("archival fields persist", func() {
		event := s.newEvent()
		s.Require().NoError(s.store.Create(ctx, event))

		archivedAt := time.Now().UTC().Truncate(time.Microsecond)
		event.State = audit.StateArchived
		event.ArchivedAt = &archivedAt
		event.ModifiedBy = "archiver"
		s.Require().NoError(s.store.Update(ctx, event))

		got, err := s.store.FindByID(ctx, event.ID)
		s.Require().NoError(err)
		s.Equal(audit.StateArchived, got.State)
		s.Require().NotNil(got.ArchivedAt)
		s.True(archivedAt.Equal(*got.ArchivedAt))
		s.Equal("archiver", got.ModifiedBy)
	})
}

func (s *PostgresStoreSuite) TestCount() {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		event := s.newEvent()
		event.ComplianceCritical = i == 0
		s.Require().NoError(s.store.Create(ctx, event))
	}

	count, err := s.store.Count(ctx, audit.Filter{ComplianceCriticalOnly: true})
	s.Require().NoError(err)
	s.Equal(1, count)
}
