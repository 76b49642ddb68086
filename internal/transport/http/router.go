// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services without embedding business logic so transport concerns remain
// isolated.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitacora/internal/alert"
	"bitacora/internal/audit/ingest"
	auditservice "bitacora/internal/audit/service"
	"bitacora/internal/authz"
	"bitacora/internal/platform/middleware"
	"bitacora/internal/report"
	"bitacora/internal/retention"
)

// Handler bundles the domain services behind the HTTP API.
type Handler struct {
	ingestor  *ingest.Service
	events    *auditservice.Service
	alerts    *alert.Engine
	retention *retention.Registry
	reports   *report.Engine
	authz     authz.Authorizer
	logger    *slog.Logger
}

func NewHandler(
	ingestor *ingest.Service,
	events *auditservice.Service,
	alerts *alert.Engine,
	retentionRegistry *retention.Registry,
	reports *report.Engine,
	authorizer authz.Authorizer,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		ingestor:  ingestor,
		events:    events,
		alerts:    alerts,
		retention: retentionRegistry,
		reports:   reports,
		authz:     authorizer,
		logger:    logger,
	}
}

// NewRouter wires all endpoints. Everything under /audit requires a valid
// bearer token; health and metrics stay open for probes and scrapers.
func NewRouter(h *Handler, validator middleware.JWTValidator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestScope)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/audit", func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, h.logger))

		r.Post("/events", h.handleRecordEvent)
		r.Post("/events/authentication", h.handleRecordAuthentication)
		r.Post("/events/crud", h.handleRecordCRUD)
		r.Post("/events/compliance", h.handleRecordCompliance)
		r.Get("/events", h.handleListEvents)
		r.Get("/events/{id}", h.handleGetEvent)
		r.Patch("/events/{id}", h.handleUpdateEvent)
		r.Delete("/events/{id}", h.handleDeleteEvent)

		r.Post("/integrity/verify", h.handleVerifyIntegrity)
		r.Post("/archive", h.handleArchive)

		r.Get("/alerts/rules", h.handleListAlertRules)
		r.Put("/alerts/rules", h.handleConfigureAlertRule)

		r.Get("/retention/policies", h.handleListRetentionPolicies)
		r.Put("/retention/policies", h.handleConfigureRetentionPolicy)

		r.Get("/statistics", h.handleStatistics)
		r.Post("/reports", h.handleGenerateReport)
		r.Post("/exports", h.handleExport)
	})

	return r
}
