package httptransport

import (
	"encoding/json"
	"net/http"

	"bitacora/internal/report"
	dErrors "bitacora/pkg/domain-errors"
	"bitacora/pkg/platform/httputil"
	"bitacora/pkg/requestcontext"
)

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reports.Statistics(r.Context(), parseFilter(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

type generateReportRequest struct {
	Title                  string `json:"title,omitempty"`
	Format                 string `json:"format"`
	IncludeSummary         bool   `json:"include_summary"`
	IncludeRecords         bool   `json:"include_records"`
	IncludeCharts          bool   `json:"include_charts"`
	IncludeRecommendations bool   `json:"include_recommendations"`
	MaxRecords             int    `json:"max_records,omitempty"`
}

func (h *Handler) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req generateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rendered, err := h.reports.Generate(r.Context(), report.Spec{
		Title:                  req.Title,
		Filter:                 parseFilter(r),
		Format:                 report.Format(req.Format),
		IncludeSummary:         req.IncludeSummary,
		IncludeRecords:         req.IncludeRecords,
		IncludeCharts:          req.IncludeCharts,
		IncludeRecommendations: req.IncludeRecommendations,
		MaxRecords:             req.MaxRecords,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rendered)
}

type exportRequest struct {
	Format               string `json:"format"`
	IncludeSensitiveData bool   `json:"include_sensitive_data"`
	Compress             bool   `json:"compress"`
	Encrypt              bool   `json:"encrypt"`
	MaxRecords           int    `json:"max_records,omitempty"`
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	artifact, err := h.reports.Export(ctx, report.ExportSpec{
		Filter:               parseFilter(r),
		Format:               report.Format(req.Format),
		IncludeSensitiveData: req.IncludeSensitiveData,
		Compress:             req.Compress,
		Encrypt:              req.Encrypt,
		MaxRecords:           req.MaxRecords,
	}, requestcontext.ActorID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, artifact)
}
