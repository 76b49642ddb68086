package httptransport

import (
	"encoding/json"
	"net/http"

	"bitacora/internal/alert"
	"bitacora/internal/authz"
	"bitacora/internal/retention"
	dErrors "bitacora/pkg/domain-errors"
	"bitacora/pkg/platform/httputil"
	"bitacora/pkg/requestcontext"
)

func (h *Handler) handleListAlertRules(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.alerts.Rules())
}

func (h *Handler) handleConfigureAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.authz.Allow(ctx, requestcontext.ActorID(ctx), authz.CapConfigureAlerts); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var rule alert.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	saved, err := h.alerts.ConfigureRule(ctx, rule)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleListRetentionPolicies(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.retention.Snapshot())
}

func (h *Handler) handleConfigureRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.authz.Allow(ctx, requestcontext.ActorID(ctx), authz.CapConfigureRetention); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var policy retention.Policy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	saved, err := h.retention.Upsert(ctx, policy)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, saved)
}
