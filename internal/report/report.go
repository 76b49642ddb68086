package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"bitacora/internal/audit"
	dErrors "bitacora/pkg/domain-errors"
)

// Format names a report/export output encoding. JSON and CSV are rendered
// natively; spreadsheet and PDF delegate to a registered codec.
type Format string

const (
	FormatJSON        Format = "json"
	FormatCSV         Format = "csv"
	FormatSpreadsheet Format = "xlsx"
	FormatPDF         Format = "pdf"
)

// Spec describes one report request.
type Spec struct {
	Title  string       `json:"title"`
	Filter audit.Filter `json:"-"`
	Format Format       `json:"format"`

	IncludeSummary         bool `json:"include_summary"`
	IncludeRecords         bool `json:"include_records"`
	IncludeCharts          bool `json:"include_charts"`
	IncludeRecommendations bool `json:"include_recommendations"`

	// MaxRecords bounds the raw record section; zero keeps the default.
	MaxRecords int `json:"max_records,omitempty"`
}

const defaultMaxRecords = 1000

// Report is the assembled result before serialization.
type Report struct {
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`

	Stats   Stats  `json:"stats"`
	Summary string `json:"summary,omitempty"`

	Records []audit.Event `json:"records,omitempty"`

	// Charts holds chart-ready series keyed by chart name.
	Charts map[string][]RankEntry `json:"charts,omitempty"`
	Trend  []TrendPoint           `json:"trend,omitempty"`

	Recommendations []string `json:"recommendations,omitempty"`
}

// Rendered is a serialized report.
type Rendered struct {
	Format      Format    `json:"format"`
	Data        []byte    `json:"data"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Generate assembles statistics plus the optional sections and serializes
// the result. Every invocation is recorded as an audit event.
func (e *Engine) Generate(ctx context.Context, spec Spec) (Rendered, error) {
	if err := e.checkFormat(spec.Format); err != nil {
		return Rendered{}, err
	}

	stats, err := e.Statistics(ctx, spec.Filter)
	if err != nil {
		return Rendered{}, err
	}

	now := e.clock()
	report := Report{
		Title:       spec.Title,
		GeneratedAt: now,
		Stats:       stats,
	}
	if report.Title == "" {
		report.Title = "audit activity report"
	}

	if spec.IncludeSummary {
		report.Summary = summarize(stats)
	}
	if spec.IncludeRecords {
		limit := spec.MaxRecords
		if limit <= 0 {
			limit = defaultMaxRecords
		}
		page, err := e.events.FindMany(ctx, spec.Filter, 1, limit)
		if err != nil {
			return Rendered{}, dErrors.Wrap(err, dErrors.CodeInternal, "report record query failed")
		}
		report.Records = page.Data
	}
	if spec.IncludeCharts {
		report.Charts = map[string][]RankEntry{
			"events_by_severity": severitySeries(stats),
			"top_actors":         stats.TopActors,
			"top_categories":     stats.TopCategories,
		}
		report.Trend = stats.DailyTrend
	}
	if spec.IncludeRecommendations {
		report.Recommendations = recommend(stats, e.thresholds)
	}

	data, err := e.render(report, spec.Format)
	if err != nil {
		return Rendered{}, err
	}

	e.recordInvocation(ctx, audit.Descriptor{
		Type:        audit.EventReportGenerated,
		Category:    audit.CategoryDataExport,
		Severity:    audit.SeverityInfo,
		Description: fmt.Sprintf("report %q generated as %s", report.Title, spec.Format),
		Payload: map[string]any{
			"format":       string(spec.Format),
			"total_events": stats.TotalEvents,
		},
		Timestamp: now,
	})

	return Rendered{Format: spec.Format, Data: data, GeneratedAt: now}, nil
}

func (e *Engine) checkFormat(format Format) error {
	switch format {
	case FormatJSON, FormatCSV:
		return nil
	case FormatSpreadsheet, FormatPDF:
		if _, ok := e.codecs[format]; !ok {
			return dErrors.Newf(dErrors.CodeValidation, "no codec registered for format %s", format)
		}
		return nil
	default:
		return dErrors.Newf(dErrors.CodeValidation, "unsupported format %q", format)
	}
}

func (e *Engine) render(report Report, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "report serialization failed")
		}
		return data, nil
	case FormatCSV:
		return renderCSV(report)
	default:
		codec := e.codecs[format]
		data, err := codec.Encode(report)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "codec rendering failed")
		}
		return data, nil
	}
}

// renderCSV writes the record section as delimited text, falling back to the
// severity breakdown when no records were requested.
func renderCSV(report Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if len(report.Records) > 0 {
		header := []string{"id", "timestamp", "type", "category", "severity", "state", "actor_id", "description"}
		if err := w.Write(header); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "csv rendering failed")
		}
		for _, event := range report.Records {
			row := []string{
				event.ID.String(),
				event.Timestamp.UTC().Format(time.RFC3339),
				string(event.Type),
				string(event.Category),
				string(event.Severity),
				string(event.State),
				event.ActorID,
				event.Description,
			}
			if err := w.Write(row); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "csv rendering failed")
			}
		}
	} else {
		if err := w.Write([]string{"severity", "count"}); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "csv rendering failed")
		}
		for _, severity := range audit.Severities() {
			row := []string{string(severity), strconv.Itoa(report.Stats.BySeverity[severity])}
			if err := w.Write(row); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "csv rendering failed")
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "csv rendering failed")
	}
	return buf.Bytes(), nil
}

func summarize(stats Stats) string {
	return fmt.Sprintf(
		"%d events recorded (%d in the last 24h). Critical: %d, errors: %d. Compliance score: %.0f/100.",
		stats.TotalEvents,
		stats.Last24Hours,
		stats.BySeverity[audit.SeverityCritical],
		stats.BySeverity[audit.SeverityError],
		stats.ComplianceScore,
	)
}

func severitySeries(stats Stats) []RankEntry {
	series := make([]RankEntry, 0, len(stats.BySeverity))
	for _, severity := range audit.Severities() {
		series = append(series, RankEntry{Key: string(severity), Count: stats.BySeverity[severity]})
	}
	return series
}

func recommend(stats Stats, t Thresholds) []string {
	var out []string
	if stats.TotalEvents == 0 {
		return out
	}
	total := float64(stats.TotalEvents)
	if float64(stats.BySeverity[audit.SeverityCritical])/total > t.CriticalRatio {
		out = append(out, "critical event share exceeds the target ratio: review security alerts and recent configuration changes")
	}
	if float64(stats.BySeverity[audit.SeverityError])/total > t.ErrorRatio {
		out = append(out, "error share exceeds the target ratio: inspect failing operations in the most active categories")
	}
	if stats.ByState[audit.StatePending] > stats.TotalEvents/2 {
		out = append(out, "over half of events are still pending: verify the processing pipeline is keeping up")
	}
	return out
}
