package httptransport_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bitacora/internal/alert"
	"bitacora/internal/audit"
	"bitacora/internal/audit/ingest"
	auditservice "bitacora/internal/audit/service"
	"bitacora/internal/audit/store"
	"bitacora/internal/authz"
	jwttoken "bitacora/internal/jwt_token"
	"bitacora/internal/report"
	"bitacora/internal/retention"
	httptransport "bitacora/internal/transport/http"
	"bitacora/pkg/testutil"
)

// =============================================================================
// HTTP Transport Test Suite
// =============================================================================
// Justification for transport tests: the router is the contract boundary.
// Token enforcement, capability propagation from claims into the request
// scope, and the error envelope shape are all decided here, on top of the
// real service stack.

type RouterSuite struct {
	suite.Suite
	events *store.InMemoryEventStore
	jwt    *jwttoken.JWTService
	router http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.events = store.NewInMemoryEventStore()
	logger := slog.Default()

	registry, err := retention.NewRegistry(retention.NewInMemoryPolicyStore())
	s.Require().NoError(err)

	alerts, err := alert.NewEngine(alert.NewInMemoryRuleStore(), s.events)
	s.Require().NoError(err)

	ingestor, err := ingest.New(s.events, registry, ingest.WithAlerts(alerts))
	s.Require().NoError(err)

	events, err := auditservice.New(s.events, authz.Claims{},
		auditservice.WithRecorder(ingestor))
	s.Require().NoError(err)

	reports, err := report.NewEngine(s.events, authz.Claims{},
		report.WithRecorder(ingestor))
	s.Require().NoError(err)

	s.jwt = jwttoken.NewJWTService("test-signing-key", "bitacora", "bitacora-api")
	handler := httptransport.NewHandler(ingestor, events, alerts, registry, reports, authz.Claims{}, logger)
	s.router = httptransport.NewRouter(handler, jwttoken.NewJWTServiceAdapter(s.jwt))
}

// token issues a bearer token for alice with the given capabilities.
func (s *RouterSuite) token(capabilities ...string) string {
	token, err := s.jwt.GenerateAccessToken("alice", "tenant-1", capabilities, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *RouterSuite) do(req *http.Request, token string) *struct {
	Status int
	Body   map[string]any
} {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := testutil.DoRequest(s.router, req)

	out := &struct {
		Status int
		Body   map[string]any
	}{Status: rr.Code}
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &out.Body)
	}
	return out
}

// =============================================================================
// Authentication Tests
// =============================================================================

func (s *RouterSuite) TestAuthentication() {
	s.Run("health endpoint is open", func() {
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/healthz"), "")
		s.Equal(http.StatusOK, resp.Status)
	})

	s.Run("audit endpoints refuse missing tokens", func() {
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit/events"), "")
		s.Equal(http.StatusUnauthorized, resp.Status)
		s.Equal("unauthorized", resp.Body["error"])
	})

	s.Run("audit endpoints refuse garbage tokens", func() {
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit/events"), "not-a-token")
		s.Equal(http.StatusUnauthorized, resp.Status)
	})

	s.Run("a valid token opens the audit surface", func() {
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit/events"), s.token())
		s.Equal(http.StatusOK, resp.Status)
	})
}

// =============================================================================
// Event Recording Tests
// =============================================================================

func (s *RouterSuite) TestRecordEvent() {
	s.Run("valid event is recorded with token identity as fallback actor", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/events", map[string]any{
			"type":        "record_created",
			"category":    "users",
			"severity":    "info",
			"description": "user profile created",
		})
		resp := s.do(req, s.token())

		s.Equal(http.StatusCreated, resp.Status)
		s.Equal("alice", resp.Body["actor_id"])
		s.Equal("tenant-1", resp.Body["tenant_id"])
		s.NotEmpty(resp.Body["integrity_digest"])
	})

	s.Run("malformed body is a bad request", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/audit/events", "{not json")
		resp := s.do(req, s.token())
		s.Equal(http.StatusBadRequest, resp.Status)
		s.Equal("bad_request", resp.Body["error"])
	})

	s.Run("validation failures carry the error envelope", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/events", map[string]any{
			"type":     "record_created",
			"category": "users",
			"severity": "info",
		})
		resp := s.do(req, s.token())
		s.Equal(http.StatusBadRequest, resp.Status)
		s.Equal("validation_failed", resp.Body["error"])
		s.Equal("event description is required", resp.Body["error_description"])
	})

	s.Run("authentication events go through the classifier", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/events/authentication", map[string]any{
			"success":  false,
			"actor_id": "bob",
			"reason":   "bad password",
		})
		resp := s.do(req, s.token())
		s.Equal(http.StatusCreated, resp.Status)
		s.Equal("login_failure", resp.Body["type"])
		s.Equal("warning", resp.Body["severity"])
	})
}

// =============================================================================
// Capability Enforcement Tests
// =============================================================================

func (s *RouterSuite) TestCapabilityEnforcement() {
	event := audit.Event{
		ID:          uuid.New(),
		Type:        audit.EventRecordCreated,
		Category:    audit.CategoryUsers,
		Severity:    audit.SeverityInfo,
		Description: "seeded",
		Timestamp:   time.Now().Add(-time.Hour),
	}
	s.Require().NoError(s.events.Create(context.Background(), event))

	s.Run("modification without the capability is forbidden", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/audit/events/"+event.ID.String(),
			map[string]any{"description": "corrected"})
		resp := s.do(req, s.token())
		s.Equal(http.StatusForbidden, resp.Status)
		s.Equal("forbidden", resp.Body["error"])
	})

	s.Run("modification with the capability succeeds", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/audit/events/"+event.ID.String(),
			map[string]any{"description": "corrected"})
		resp := s.do(req, s.token("audit:modify"))
		s.Equal(http.StatusOK, resp.Status)
		s.Equal("corrected", resp.Body["description"])
		s.Equal("alice", resp.Body["modified_by"])
	})

	s.Run("alert rule configuration is capability-gated", func() {
		body := map[string]any{"name": "critical burst", "threshold": 1, "active": true}

		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/audit/alerts/rules", body)
		resp := s.do(req, s.token())
		s.Equal(http.StatusForbidden, resp.Status)

		req = testutil.NewJSONRequest(s.T(), http.MethodPut, "/audit/alerts/rules", body)
		resp = s.do(req, s.token("audit:configure_alerts"))
		s.Equal(http.StatusOK, resp.Status)
		s.NotEmpty(resp.Body["id"])
	})

	s.Run("retention policy configuration is capability-gated", func() {
		body := map[string]any{
			"category":       "security",
			"severity":       "warning",
			"retention_days": 365,
		}

		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/audit/retention/policies", body)
		resp := s.do(req, s.token())
		s.Equal(http.StatusForbidden, resp.Status)

		req = testutil.NewJSONRequest(s.T(), http.MethodPut, "/audit/retention/policies", body)
		resp = s.do(req, s.token("audit:configure_retention"))
		s.Equal(http.StatusOK, resp.Status)
	})
}

// =============================================================================
// Query Surface Tests
// =============================================================================

func (s *RouterSuite) TestQuerySurface() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/events", map[string]any{
		"type":        "record_created",
		"category":    "users",
		"severity":    "info",
		"description": "user profile created",
	})
	created := s.do(req, s.token())
	s.Require().Equal(http.StatusCreated, created.Status)
	eventID := created.Body["id"].(string)

	s.Run("list returns the recorded event", func() {
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit/events?categories=users"), s.token())
		s.Equal(http.StatusOK, resp.Status)
		s.Equal(float64(1), resp.Body["total"])
	})

	s.Run("get verifies integrity on read", func() {
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit/events/"+eventID), s.token())
		s.Equal(http.StatusOK, resp.Status)
		s.Equal(true, resp.Body["integrity_ok"])
	})

	s.Run("unknown event is not found", func() {
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit/events/"+uuid.NewString()), s.token())
		s.Equal(http.StatusNotFound, resp.Status)
		s.Equal("not_found", resp.Body["error"])
	})

	s.Run("statistics aggregate the trail", func() {
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit/statistics"), s.token())
		s.Equal(http.StatusOK, resp.Status)
		s.Equal(float64(100), resp.Body["compliance_score"])
	})
}
