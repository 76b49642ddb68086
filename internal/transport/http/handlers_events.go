package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bitacora/internal/audit"
	"bitacora/internal/audit/ingest"
	auditservice "bitacora/internal/audit/service"
	dErrors "bitacora/pkg/domain-errors"
	"bitacora/pkg/platform/httputil"
	"bitacora/pkg/requestcontext"
)

type recordEventRequest struct {
	Type        string         `json:"type"`
	Category    string         `json:"category"`
	Severity    string         `json:"severity"`
	Description string         `json:"description"`
	Detail      string         `json:"detail,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
	ActorName   string         `json:"actor_name,omitempty"`
	TenantID    string         `json:"tenant_id,omitempty"`
}

func (h *Handler) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid record event request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	event, err := h.ingestor.Record(ctx, audit.Descriptor{
		Type:        audit.EventType(req.Type),
		Category:    audit.Category(req.Category),
		Severity:    audit.Severity(req.Severity),
		Description: req.Description,
		Detail:      req.Detail,
		Payload:     req.Payload,
		ActorID:     fallback(req.ActorID, requestcontext.ActorID(ctx)),
		ActorName:   req.ActorName,
		TenantID:    fallback(req.TenantID, requestcontext.TenantID(ctx)),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

type recordAuthenticationRequest struct {
	Success   bool   `json:"success"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (h *Handler) handleRecordAuthentication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recordAuthenticationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	event, err := h.ingestor.RecordAuthentication(ctx, ingest.AuthDescriptor{
		Success:   req.Success,
		ActorID:   req.ActorID,
		ActorName: req.ActorName,
		TenantID:  fallback(req.TenantID, requestcontext.TenantID(ctx)),
		Reason:    req.Reason,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

type recordCRUDRequest struct {
	Action   string         `json:"action"`
	Category string         `json:"category"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id,omitempty"`
	Before   map[string]any `json:"before,omitempty"`
	After    map[string]any `json:"after,omitempty"`
	Count    int            `json:"count,omitempty"`
}

func (h *Handler) handleRecordCRUD(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recordCRUDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	event, err := h.ingestor.RecordCRUD(ctx, ingest.CRUDDescriptor{
		Action:   ingest.CRUDAction(req.Action),
		Category: audit.Category(req.Category),
		Entity:   req.Entity,
		EntityID: req.EntityID,
		Before:   req.Before,
		After:    req.After,
		Count:    req.Count,
		ActorID:  requestcontext.ActorID(ctx),
		TenantID: requestcontext.TenantID(ctx),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

type recordComplianceRequest struct {
	Description string         `json:"description"`
	Detail      string         `json:"detail,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (h *Handler) handleRecordCompliance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recordComplianceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	event, err := h.ingestor.RecordCompliance(ctx, ingest.ComplianceDescriptor{
		Description: req.Description,
		Detail:      req.Detail,
		Payload:     req.Payload,
		ActorID:     requestcontext.ActorID(ctx),
		TenantID:    requestcontext.TenantID(ctx),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)
	result, err := h.events.ListEvents(r.Context(), parseFilter(r), page, pageSize)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return
	}
	result, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type updateEventRequest struct {
	Description *string        `json:"description,omitempty"`
	Detail      *string        `json:"detail,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (h *Handler) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return
	}

	var req updateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	event, err := h.events.UpdateEvent(ctx, id, auditservice.Changes{
		Description: req.Description,
		Detail:      req.Detail,
		Payload:     req.Payload,
	}, requestcontext.ActorID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, event)
}

func (h *Handler) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return
	}

	q := r.URL.Query()
	err = h.events.DeleteEvent(ctx, id,
		requestcontext.ActorID(ctx),
		q.Get("justification"),
		q.Get("hard") == "true",
	)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type verifyIntegrityRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (h *Handler) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	var req verifyIntegrityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.events.VerifyIntegrity(r.Context(), req.From, req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	result, err := h.events.ArchiveOldEvents(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func fallback(value, alt string) string {
	if value != "" {
		return value
	}
	return alt
}
