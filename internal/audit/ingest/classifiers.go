package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mssola/useragent"

	"bitacora/internal/audit"
	dErrors "bitacora/pkg/domain-errors"
	"bitacora/pkg/requestcontext"
)

// DefaultFailureThreshold marks an actor's authentication failures as
// compliance-critical once this many occur consecutively.
const DefaultFailureThreshold = 3

// failureTracker counts consecutive authentication failures per actor.
// A success resets the count.
type failureTracker struct {
	mu       sync.Mutex
	failures map[string]int
}

func newFailureTracker() *failureTracker {
	return &failureTracker{failures: make(map[string]int)}
}

func (t *failureTracker) record(actorID string, success bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if success {
		delete(t.failures, actorID)
		return 0
	}
	t.failures[actorID]++
	return t.failures[actorID]
}

// AuthDescriptor describes an authentication attempt.
type AuthDescriptor struct {
	Success   bool
	ActorID   string
	ActorName string
	TenantID  string
	Reason    string
}

// RecordAuthentication classifies an authentication attempt. Repeated
// consecutive failures for the same actor escalate to compliance-critical.
// The caller's IP and parsed user agent are captured in the payload for
// session forensics.
func (s *Service) RecordAuthentication(ctx context.Context, d AuthDescriptor) (audit.Event, error) {
	payload := map[string]any{}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		payload["ip_address"] = ip
	}
	if raw := requestcontext.UserAgent(ctx); raw != "" {
		ua := useragent.New(raw)
		browser, version := ua.Browser()
		payload["user_agent"] = raw
		payload["browser"] = browser
		payload["browser_version"] = version
		payload["os"] = ua.OS()
		payload["mobile"] = ua.Mobile()
	}

	desc := audit.Descriptor{
		Category:  audit.CategoryAuthentication,
		ActorID:   d.ActorID,
		ActorName: d.ActorName,
		TenantID:  d.TenantID,
		Payload:   payload,
	}

	if d.Success {
		s.failures.record(d.ActorID, true)
		desc.Type = audit.EventLoginSuccess
		desc.Severity = audit.SeverityInfo
		desc.Description = fmt.Sprintf("successful authentication for %s", displayName(d))
	} else {
		count := s.failures.record(d.ActorID, false)
		desc.Type = audit.EventLoginFailure
		desc.Severity = audit.SeverityWarning
		desc.Description = fmt.Sprintf("failed authentication for %s", displayName(d))
		desc.Detail = d.Reason
		payload["consecutive_failures"] = count
		if count >= s.threshold {
			desc.Severity = audit.SeverityError
			desc.ComplianceCritical = true
		}
	}

	return s.Record(ctx, desc)
}

// CRUDAction names the mutation recorded by RecordCRUD.
type CRUDAction string

const (
	ActionCreated    CRUDAction = "created"
	ActionUpdated    CRUDAction = "updated"
	ActionDeleted    CRUDAction = "deleted"
	ActionBulkDelete CRUDAction = "bulk_deleted"
)

// CRUDDescriptor describes a create/update/delete mutation on a business
// record.
type CRUDDescriptor struct {
	Action    CRUDAction
	Category  audit.Category
	Entity    string
	EntityID  string
	Before    map[string]any
	After     map[string]any
	Count     int
	ActorID   string
	ActorName string
	TenantID  string
}

// RecordCRUD classifies a record mutation. Deletions log at warning; bulk
// deletions are always compliance-critical.
func (s *Service) RecordCRUD(ctx context.Context, d CRUDDescriptor) (audit.Event, error) {
	payload := map[string]any{
		"entity": d.Entity,
	}
	if d.EntityID != "" {
		payload["entity_id"] = d.EntityID
	}
	if d.Before != nil {
		payload["before"] = d.Before
	}
	if d.After != nil {
		payload["after"] = d.After
	}
	if d.Count > 0 {
		payload["count"] = d.Count
	}

	desc := audit.Descriptor{
		Category:  d.Category,
		ActorID:   d.ActorID,
		ActorName: d.ActorName,
		TenantID:  d.TenantID,
		Payload:   payload,
		Severity:  audit.SeverityInfo,
	}

	switch d.Action {
	case ActionCreated:
		desc.Type = audit.EventRecordCreated
		desc.Description = fmt.Sprintf("%s created", d.Entity)
	case ActionUpdated:
		desc.Type = audit.EventRecordUpdated
		desc.Description = fmt.Sprintf("%s updated", d.Entity)
	case ActionDeleted:
		desc.Type = audit.EventRecordDeleted
		desc.Severity = audit.SeverityWarning
		desc.Description = fmt.Sprintf("%s deleted", d.Entity)
	case ActionBulkDelete:
		desc.Type = audit.EventBulkDeleted
		desc.Severity = audit.SeverityWarning
		desc.ComplianceCritical = true
		desc.Description = fmt.Sprintf("bulk deletion of %d %s records", d.Count, d.Entity)
	default:
		return audit.Event{}, dErrors.Newf(dErrors.CodeValidation, "unknown CRUD action %q", d.Action)
	}

	return s.Record(ctx, desc)
}

// ComplianceDescriptor describes a regulatory-significant occurrence.
type ComplianceDescriptor struct {
	Description string
	Detail      string
	Payload     map[string]any
	ActorID     string
	ActorName   string
	TenantID    string
}

// RecordCompliance classifies a compliance event. These are unconditionally
// critical, compliance-critical, and notification-requiring.
func (s *Service) RecordCompliance(ctx context.Context, d ComplianceDescriptor) (audit.Event, error) {
	return s.Record(ctx, audit.Descriptor{
		Type:                 audit.EventCompliance,
		Category:             audit.CategoryCompliance,
		Severity:             audit.SeverityCritical,
		Description:          d.Description,
		Detail:               d.Detail,
		Payload:              d.Payload,
		ActorID:              d.ActorID,
		ActorName:            d.ActorName,
		TenantID:             d.TenantID,
		ComplianceCritical:   true,
		RequiresNotification: true,
	})
}

func displayName(d AuthDescriptor) string {
	if d.ActorName != "" {
		return d.ActorName
	}
	if d.ActorID != "" {
		return d.ActorID
	}
	return "unknown actor"
}
