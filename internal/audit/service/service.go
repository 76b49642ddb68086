// Package service exposes the query and administration surface of the audit
// trail: listing, integrity-checked reads, the audited modification path,
// soft deletion, integrity sweeps, and manual archival.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bitacora/internal/audit"
	"bitacora/internal/audit/integrity"
	"bitacora/internal/audit/store"
	"bitacora/internal/authz"
	"bitacora/internal/platform/metrics"
	"bitacora/internal/retention"
	dErrors "bitacora/pkg/domain-errors"
	"bitacora/pkg/requestcontext"
)

// Recorder writes secondary audit records (modifications, deletions,
// integrity findings) through the ingestor.
type Recorder interface {
	Record(ctx context.Context, d audit.Descriptor) (audit.Event, error)
}

// ArchiveRunner triggers one archival pass on demand.
type ArchiveRunner interface {
	Run(ctx context.Context) (retention.Result, error)
}

// Service wires the event store gateway to the external operations.
type Service struct {
	events   store.EventStore
	recorder Recorder
	archiver ArchiveRunner
	authz    authz.Authorizer
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// integrityTarget is the sweep health threshold, as a percentage.
	// Below it, the sweep recommends a forensic review.
	integrityTarget float64
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

func WithArchiver(archiver ArchiveRunner) Option {
	return func(s *Service) {
		s.archiver = archiver
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIntegrityTarget overrides the sweep health threshold percentage.
func WithIntegrityTarget(pct float64) Option {
	return func(s *Service) {
		if pct > 0 && pct <= 100 {
			s.integrityTarget = pct
		}
	}
}

func New(events store.EventStore, authorizer authz.Authorizer, opts ...Option) (*Service, error) {
	if events == nil {
		return nil, errors.New("event store is required")
	}
	if authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	s := &Service{
		events:          events,
		authz:           authorizer,
		logger:          slog.Default(),
		integrityTarget: 95,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListEvents returns one page of events matching the filter.
func (s *Service) ListEvents(ctx context.Context, filter audit.Filter, page, pageSize int) (audit.Page, error) {
	result, err := s.events.FindMany(ctx, filter, page, pageSize)
	if err != nil {
		return audit.Page{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query events")
	}
	return result, nil
}

// EventResult is a read annotated with the integrity verdict. A digest
// mismatch never fails the read: the tampered record is still evidence.
type EventResult struct {
	Event       audit.Event `json:"event"`
	IntegrityOK bool        `json:"integrity_ok"`
}

// GetEvent fetches one event and verifies its digest as a side effect. A
// mismatch is recorded as its own audit event and surfaced in the result.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (EventResult, error) {
	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return EventResult{}, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return EventResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}

	ok := integrity.Verify(event)
	if !ok {
		s.flagViolation(ctx, event, "digest mismatch on read")
	}
	return EventResult{Event: event, IntegrityOK: ok}, nil
}

// Changes holds the mutable fields of the audited modification path. Nil
// pointers leave the field untouched.
type Changes struct {
	Description *string
	Detail      *string
	Payload     map[string]any
}

// UpdateEvent applies an authorized correction. The modification is itself
// recorded, and the digest is recomputed so subsequent verification passes.
func (s *Service) UpdateEvent(ctx context.Context, id uuid.UUID, changes Changes, actorID string) (audit.Event, error) {
	if actorID == "" {
		return audit.Event{}, dErrors.New(dErrors.CodeForbidden, "modifier identity is required")
	}
	if err := s.authz.Allow(ctx, actorID, authz.CapModifyEvents); err != nil {
		return audit.Event{}, err
	}

	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return audit.Event{}, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return audit.Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}

	changed := make([]string, 0, 3)
	if changes.Description != nil {
		event.Description = *changes.Description
		changed = append(changed, "description")
	}
	if changes.Detail != nil {
		event.Detail = *changes.Detail
		changed = append(changed, "detail")
	}
	if changes.Payload != nil {
		event.Payload = changes.Payload
		changed = append(changed, "payload")
	}
	if len(changed) == 0 {
		return audit.Event{}, dErrors.New(dErrors.CodeValidation, "no changes supplied")
	}

	now := requestcontext.Now(ctx)
	event.ModifiedAt = &now
	event.ModifiedBy = actorID
	event.IntegrityDigest = integrity.Digest(event)

	if err := s.events.Update(ctx, event); err != nil {
		return audit.Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update event")
	}

	s.recordSecondary(ctx, audit.Descriptor{
		Type:          audit.EventModification,
		Category:      audit.CategorySystem,
		Severity:      audit.SeverityWarning,
		Description:   fmt.Sprintf("audit record %s modified", event.ID),
		CorrelationID: event.CorrelationID,
		ActorID:       actorID,
		Payload: map[string]any{
			"event_id":       event.ID.String(),
			"changed_fields": changed,
		},
		Timestamp: now,
	})

	return event, nil
}

// DeleteEvent removes an event from the active trail. Removal is always a
// soft transition to archived. With hard=true the caller asks for a purge:
// compliance-critical records and records inside their retention window are
// refused with a policy conflict; otherwise the payload and detail are
// stripped, which is as physical as the gateway contract allows.
func (s *Service) DeleteEvent(ctx context.Context, id uuid.UUID, actorID, justification string, hard bool) error {
	if actorID == "" {
		return dErrors.New(dErrors.CodeForbidden, "actor identity is required")
	}
	capability := authz.CapDeleteEvents
	if hard {
		capability = authz.CapPurgeEvents
	}
	if err := s.authz.Allow(ctx, actorID, capability); err != nil {
		return err
	}
	if justification == "" {
		return dErrors.New(dErrors.CodeValidation, "deletion requires a justification")
	}

	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}

	now := requestcontext.Now(ctx)

	if hard {
		if event.ComplianceCritical {
			return dErrors.New(dErrors.CodePolicyConflict,
				"compliance-critical events cannot be purged")
		}
		if retentionExpiry(event).After(now) {
			return dErrors.New(dErrors.CodePolicyConflict,
				"event is still inside its retention window")
		}
		event.Payload = nil
		event.Detail = ""
	}

	event.State = audit.StateArchived
	event.Archive = true
	event.ArchivedAt = &now
	event.ModifiedAt = &now
	event.ModifiedBy = actorID
	event.IntegrityDigest = integrity.Digest(event)

	if err := s.events.Update(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to archive event")
	}

	s.recordSecondary(ctx, audit.Descriptor{
		Type:          audit.EventRecordDeleted,
		Category:      audit.CategorySystem,
		Severity:      audit.SeverityWarning,
		Description:   fmt.Sprintf("audit record %s removed from active trail", event.ID),
		Detail:        justification,
		CorrelationID: event.CorrelationID,
		ActorID:       actorID,
		Payload: map[string]any{
			"event_id": event.ID.String(),
			"hard":     hard,
		},
		Timestamp: now,
	})

	return nil
}

// IntegrityResult summarizes a verification sweep.
type IntegrityResult struct {
	Scanned              int         `json:"scanned"`
	Corrupted            int         `json:"corrupted"`
	SuspiciouslyModified int         `json:"suspiciously_modified"`
	CorruptedIDs         []uuid.UUID `json:"corrupted_ids,omitempty"`
	IntegrityPercentage  float64     `json:"integrity_percentage"`
	Recommendations      []string    `json:"recommendations,omitempty"`
}

// VerifyIntegrity sweeps events in the date range, recomputes digests, and
// reports mismatches. Findings are recorded, not thrown: tampered records
// remain readable evidence.
func (s *Service) VerifyIntegrity(ctx context.Context, from, to time.Time) (IntegrityResult, error) {
	var result IntegrityResult
	filter := audit.Filter{From: from, To: to, SortDirection: audit.SortAsc}

	for page := 1; ; page++ {
		batch, err := s.events.FindMany(ctx, filter, page, 500)
		if err != nil {
			return IntegrityResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "integrity sweep query failed")
		}
		if len(batch.Data) == 0 {
			break
		}
		for _, event := range batch.Data {
			result.Scanned++
			if integrity.Verify(event) {
				continue
			}
			if event.ModifiedAt != nil {
				result.SuspiciouslyModified++
			} else {
				result.Corrupted++
			}
			result.CorruptedIDs = append(result.CorruptedIDs, event.ID)
			if s.metrics != nil {
				s.metrics.IntegrityViolations.Inc()
			}
		}
		if page >= batch.TotalPages {
			break
		}
	}

	if result.Scanned > 0 {
		healthy := result.Scanned - result.Corrupted - result.SuspiciouslyModified
		result.IntegrityPercentage = float64(healthy) / float64(result.Scanned) * 100
	} else {
		result.IntegrityPercentage = 100
	}

	if result.Corrupted > 0 {
		result.Recommendations = append(result.Recommendations,
			"corrupted records detected: preserve them and open a forensic review")
	}
	if result.SuspiciouslyModified > 0 {
		result.Recommendations = append(result.Recommendations,
			"records modified outside the audited correction path: review modification trail")
	}
	if result.IntegrityPercentage < s.integrityTarget {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("integrity below %.0f%% target: escalate to the security team", s.integrityTarget))
	}

	if result.Corrupted+result.SuspiciouslyModified > 0 {
		s.recordSecondary(ctx, audit.Descriptor{
			Type:        audit.EventIntegrityCheck,
			Category:    audit.CategorySecurity,
			Severity:    audit.SeverityError,
			Description: fmt.Sprintf("integrity sweep found %d mismatched records", result.Corrupted+result.SuspiciouslyModified),
			Payload: map[string]any{
				"scanned":   result.Scanned,
				"corrupted": result.Corrupted,
				"modified":  result.SuspiciouslyModified,
			},
		})
	}

	return result, nil
}

// ArchiveOldEvents runs one archival pass on demand.
func (s *Service) ArchiveOldEvents(ctx context.Context) (retention.Result, error) {
	if s.archiver == nil {
		return retention.Result{}, dErrors.New(dErrors.CodeInternal, "archiver is not configured")
	}
	return s.archiver.Run(ctx)
}

func (s *Service) flagViolation(ctx context.Context, event audit.Event, reason string) {
	if s.metrics != nil {
		s.metrics.IntegrityViolations.Inc()
	}
	s.logger.Warn("integrity violation detected",
		"event_id", event.ID,
		"reason", reason,
	)
	s.recordSecondary(ctx, audit.Descriptor{
		Type:          audit.EventIntegrityCheck,
		Category:      audit.CategorySecurity,
		Severity:      audit.SeverityError,
		Description:   fmt.Sprintf("integrity violation on event %s", event.ID),
		Detail:        reason,
		CorrelationID: event.CorrelationID,
		Payload:       map[string]any{"event_id": event.ID.String()},
	})
}

func (s *Service) recordSecondary(ctx context.Context, d audit.Descriptor) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(ctx, d); err != nil {
		s.logger.Error("failed to record secondary audit event", "type", d.Type, "error", err)
	}
}

func retentionExpiry(event audit.Event) time.Time {
	return event.Timestamp.AddDate(0, 0, event.RetentionDays)
}
