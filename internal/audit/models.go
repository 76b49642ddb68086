// Package audit defines the core audit event model shared by the ingest,
// alerting, retention, and reporting subsystems. Keep it transport-agnostic
// so stores and sinks can fan out.
package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType classifies what happened. The set is closed so retention and
// alerting rules can match on it reliably.
type EventType string

const (
	EventLoginSuccess    EventType = "login_success"
	EventLoginFailure    EventType = "login_failure"
	EventLogout          EventType = "logout"
	EventRecordCreated   EventType = "record_created"
	EventRecordUpdated   EventType = "record_updated"
	EventRecordDeleted   EventType = "record_deleted"
	EventBulkDeleted     EventType = "bulk_deleted"
	EventExportPerformed EventType = "export_performed"
	EventReportGenerated EventType = "report_generated"
	EventConfigChanged   EventType = "config_changed"
	EventSecurityAlert   EventType = "security_alert"
	EventCompliance      EventType = "compliance"
	EventIntegrityCheck  EventType = "integrity_check"
	EventArchivalRun     EventType = "archival_run"
	EventModification    EventType = "audit_modification"
)

// Category is the business area an event belongs to. Retention policy is
// keyed by (Category, Severity).
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryUsers          Category = "users"
	CategoryRoles          Category = "roles"
	CategoryPermissions    Category = "permissions"
	CategoryTenants        Category = "tenants"
	CategoryConfiguration  Category = "configuration"
	CategoryDataExport     Category = "data_export"
	CategorySecurity       Category = "security"
	CategoryCompliance     Category = "compliance"
	CategorySystem         Category = "system"
)

// Severity is an ordered level: debug < info < warning < error < critical.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for comparisons. Unknown severities rank
// below debug so they never satisfy a minimum-severity check by accident.
var severityRank = map[Severity]int{
	SeverityDebug:    1,
	SeverityInfo:     2,
	SeverityWarning:  3,
	SeverityError:    4,
	SeverityCritical: 5,
}

// Rank returns the ordinal position of the severity (0 for unknown).
func (s Severity) Rank() int { return severityRank[s] }

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Severities lists all known levels in ascending order.
func Severities() []Severity {
	return []Severity{SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
}

// State is the lifecycle position of an event. Archived is terminal for the
// normal flow.
type State string

const (
	StatePending   State = "pending"
	StateProcessed State = "processed"
	StateArchived  State = "archived"
)

// Event is one record of a security/compliance-relevant action. Fields in
// the canonical hash subset (see internal/audit/integrity) are immutable
// after creation; everything else may change without invalidating the
// digest.
type Event struct {
	ID            uuid.UUID `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	TransactionID string    `json:"transaction_id"`

	Type     EventType `json:"type"`
	Category Category  `json:"category"`
	Severity Severity  `json:"severity"`
	State    State     `json:"state"`

	Description string         `json:"description"`
	Detail      string         `json:"detail,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`

	ActorID   string `json:"actor_id,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`

	Timestamp  time.Time     `json:"timestamp"`
	CreatedAt  time.Time     `json:"created_at"`
	Processing time.Duration `json:"processing,omitempty"`

	IntegrityDigest      string     `json:"integrity_digest"`
	RequiresNotification bool       `json:"requires_notification"`
	ComplianceCritical   bool       `json:"compliance_critical"`
	RetentionDays        int        `json:"retention_days"`
	Archive              bool       `json:"archive"`
	ArchivedAt           *time.Time `json:"archived_at,omitempty"`

	// Modification trail. Changing an audit record is itself auditable.
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	ModifiedBy string     `json:"modified_by,omitempty"`
}

// Descriptor is the raw input accepted by the ingestor. Identity,
// correlation, timestamps, integrity, and retention metadata are stamped
// during ingestion when absent.
type Descriptor struct {
	Type          EventType
	Category      Category
	Severity      Severity
	Description   string
	Detail        string
	Payload       map[string]any
	ActorID       string
	ActorName     string
	TenantID      string
	Timestamp     time.Time
	CorrelationID string
	TransactionID string

	// ComplianceCritical may be forced by specialized classifiers.
	ComplianceCritical   bool
	RequiresNotification bool
}

// SortDirection orders query results.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Filter narrows event queries. Zero values mean "no constraint". Slices are
// OR-matched within a dimension and AND-matched across dimensions.
type Filter struct {
	Types      []EventType
	Categories []Category
	Severities []Severity
	State      State
	// ExcludeArchived drops archived events regardless of State. The
	// archival scheduler relies on this to stay idempotent.
	ExcludeArchived bool
	ActorIDs        []string
	TenantID        string
	From            time.Time
	To              time.Time

	// DescriptionContains is a case-insensitive free-text match.
	DescriptionContains string

	ComplianceCriticalOnly   bool
	NotificationRequiredOnly bool

	CorrelationID string
	TransactionID string

	// Fields projects the result to the named top-level fields; empty keeps
	// everything. Stores that cannot project return full records.
	Fields []string

	SortField     string
	SortDirection SortDirection
}

// Matches reports whether the event satisfies every constraint of the
// filter. The in-memory store and the alert engine's inline evaluation both
// rely on this, so it is the single source of filter semantics.
func (f Filter) Matches(e Event) bool {
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, e.Category) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, e.Severity) {
		return false
	}
	if f.State != "" && e.State != f.State {
		return false
	}
	if f.ExcludeArchived && e.State == StateArchived {
		return false
	}
	if len(f.ActorIDs) > 0 && !containsString(f.ActorIDs, e.ActorID) {
		return false
	}
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.DescriptionContains != "" &&
		!strings.Contains(strings.ToLower(e.Description), strings.ToLower(f.DescriptionContains)) {
		return false
	}
	if f.ComplianceCriticalOnly && !e.ComplianceCritical {
		return false
	}
	if f.NotificationRequiredOnly && !e.RequiresNotification {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.TransactionID != "" && e.TransactionID != f.TransactionID {
		return false
	}
	return true
}

// Page is one page of a paginated query.
type Page struct {
	Data       []Event `json:"data"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	TotalPages int     `json:"total_pages"`
}

func containsType(list []EventType, v EventType) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsCategory(list []Category, v Category) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsSeverity(list []Severity, v Severity) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
