// Package retention owns the (category, severity) → retention policy
// mapping and the archival pass that applies it.
package retention

import (
	"time"

	"github.com/google/uuid"

	"bitacora/internal/audit"
)

// Policy controls how long events of one (category, severity) pair are kept
// before archival, and what archival does to them.
type Policy struct {
	ID       uuid.UUID      `json:"id"`
	Category audit.Category `json:"category"`
	Severity audit.Severity `json:"severity"`

	RetentionDays     int  `json:"retention_days"`
	AutoArchive       bool `json:"auto_archive"`
	CompressOnArchive bool `json:"compress_on_archive"`

	// HardDeleteAfterDays permits physical deletion this long after the
	// retention window ends. Zero means never.
	HardDeleteAfterDays int `json:"hard_delete_after_days,omitempty"`

	// ExemptComplianceCritical leaves compliance-critical events untouched
	// by the archival pass.
	ExemptComplianceCritical bool `json:"exempt_compliance_critical"`

	// Criteria carries free-form extra matching hints for external tooling.
	// The archiver itself only matches on category and severity.
	Criteria map[string]any `json:"criteria,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key identifies a policy in the registry.
type Key struct {
	Category audit.Category
	Severity audit.Severity
}

func (p Policy) Key() Key {
	return Key{Category: p.Category, Severity: p.Severity}
}

// severityDefaults is the fallback retention table used when no specific
// policy is registered for a (category, severity) pair.
var severityDefaults = map[audit.Severity]int{
	audit.SeverityCritical: 2555, // ~7 years
	audit.SeverityError:    365,
	audit.SeverityWarning:  180,
	audit.SeverityInfo:     90,
	audit.SeverityDebug:    30,
}

// DefaultRetentionDays returns the severity-only fallback, defaulting to the
// info window for unknown severities.
func DefaultRetentionDays(severity audit.Severity) int {
	if days, ok := severityDefaults[severity]; ok {
		return days
	}
	return severityDefaults[audit.SeverityInfo]
}

// DefaultPolicy synthesizes the fallback policy for a pair with no explicit
// registration. Compliance-critical events are exempt by default so the
// automated pass can never archive legal evidence without an operator
// opting in.
func DefaultPolicy(category audit.Category, severity audit.Severity) Policy {
	return Policy{
		Category:                 category,
		Severity:                 severity,
		RetentionDays:            DefaultRetentionDays(severity),
		AutoArchive:              true,
		ExemptComplianceCritical: true,
	}
}
