package httptransport

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitacora/internal/audit"
)

// parseFilter builds an event filter from query parameters. Unknown
// parameters are ignored; malformed dates surface as zero values.
func parseFilter(r *http.Request) audit.Filter {
	q := r.URL.Query()
	filter := audit.Filter{
		State:               audit.State(q.Get("state")),
		TenantID:            q.Get("tenant_id"),
		DescriptionContains: q.Get("search"),
		CorrelationID:       q.Get("correlation_id"),
		TransactionID:       q.Get("transaction_id"),
		SortField:           q.Get("sort"),
		SortDirection:       audit.SortDirection(q.Get("order")),
	}

	for _, raw := range splitParam(q.Get("types")) {
		filter.Types = append(filter.Types, audit.EventType(raw))
	}
	for _, raw := range splitParam(q.Get("categories")) {
		filter.Categories = append(filter.Categories, audit.Category(raw))
	}
	for _, raw := range splitParam(q.Get("severities")) {
		filter.Severities = append(filter.Severities, audit.Severity(raw))
	}
	filter.ActorIDs = splitParam(q.Get("actor_ids"))
	filter.Fields = splitParam(q.Get("fields"))

	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filter.From = from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filter.To = to
	}
	filter.ComplianceCriticalOnly = q.Get("compliance_critical") == "true"
	filter.NotificationRequiredOnly = q.Get("requires_notification") == "true"
	filter.ExcludeArchived = q.Get("exclude_archived") == "true"

	return filter
}

// parsePagination reads page and page_size with sane fallbacks.
func parsePagination(r *http.Request) (page, pageSize int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	pageSize, _ = strconv.Atoi(q.Get("page_size"))
	return page, pageSize
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
