// Package ingest accepts raw event descriptors, classifies them, stamps
// identity, integrity, and retention metadata, persists them, and feeds the
// alert engine. It is the single write path into the audit trail.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bitacora/internal/audit"
	"bitacora/internal/audit/integrity"
	"bitacora/internal/audit/store"
	"bitacora/internal/platform/metrics"
	"bitacora/internal/retention"
	dErrors "bitacora/pkg/domain-errors"
	"bitacora/pkg/requestcontext"
)

// InlineEvaluator is the alert engine's inline hook.
type InlineEvaluator interface {
	EvaluateInline(ctx context.Context, event audit.Event)
}

// EventNotifier receives events flagged as requiring notification. Dispatch
// is fire-and-forget: failures are logged here, retries belong to the
// notification collaborator.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, event audit.Event) error
}

// Service is the event ingestor.
type Service struct {
	events   store.EventStore
	registry *retention.Registry
	alerts   InlineEvaluator
	notifier EventNotifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	failures  *failureTracker
	threshold int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAlerts(alerts InlineEvaluator) Option {
	return func(s *Service) {
		s.alerts = alerts
	}
}

func WithNotifier(notifier EventNotifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithFailureThreshold overrides how many consecutive authentication
// failures mark an actor's failure as compliance-critical.
func WithFailureThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.threshold = n
		}
	}
}

func New(events store.EventStore, registry *retention.Registry, opts ...Option) (*Service, error) {
	if events == nil {
		return nil, errors.New("event store is required")
	}
	if registry == nil {
		return nil, errors.New("retention registry is required")
	}
	s := &Service{
		events:    events,
		registry:  registry,
		logger:    slog.Default(),
		tracer:    otel.Tracer("bitacora/ingest"),
		failures:  newFailureTracker(),
		threshold: DefaultFailureThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Record is the generic ingestion path. Specialized classifiers build a
// descriptor and delegate here.
func (s *Service) Record(ctx context.Context, d audit.Descriptor) (audit.Event, error) {
	ctx, span := s.tracer.Start(ctx, "audit.record",
		trace.WithAttributes(
			attribute.String("audit.type", string(d.Type)),
			attribute.String("audit.category", string(d.Category)),
			attribute.String("audit.severity", string(d.Severity)),
		))
	defer span.End()

	if err := validate(d); err != nil {
		return audit.Event{}, err
	}

	now := requestcontext.Now(ctx)
	start := time.Now()

	event := audit.Event{
		ID:            uuid.New(),
		CorrelationID: d.CorrelationID,
		TransactionID: d.TransactionID,
		Type:          d.Type,
		Category:      d.Category,
		Severity:      d.Severity,
		State:         audit.StatePending,
		Description:   d.Description,
		Detail:        d.Detail,
		Payload:       d.Payload,
		ActorID:       d.ActorID,
		ActorName:     d.ActorName,
		TenantID:      d.TenantID,
		Timestamp:     d.Timestamp,
		CreatedAt:     now,

		RequiresNotification: d.RequiresNotification,
		ComplianceCritical:   d.ComplianceCritical,
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	if event.CorrelationID == "" {
		event.CorrelationID = s.correlationID(ctx, span)
	}
	if event.TransactionID == "" {
		event.TransactionID = uuid.NewString()
	}

	policy := s.registry.Resolve(event.Category, event.Severity)
	event.RetentionDays = policy.RetentionDays
	event.Archive = policy.AutoArchive

	// Critical and compliance-critical events skip the pending state and
	// always notify.
	if event.Severity == audit.SeverityCritical || event.ComplianceCritical {
		event.State = audit.StateProcessed
		event.RequiresNotification = true
	}

	event.IntegrityDigest = integrity.Digest(event)
	event.Processing = time.Since(start)

	if err := s.events.Create(ctx, event); err != nil {
		return audit.Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist audit event")
	}

	if s.metrics != nil {
		s.metrics.IncEventsRecorded(string(event.Severity))
	}

	if s.alerts != nil {
		s.alerts.EvaluateInline(ctx, event)
	}

	if event.RequiresNotification && s.notifier != nil {
		if err := s.notifier.NotifyEvent(ctx, event); err != nil {
			s.logger.Error("event notification dispatch failed",
				"event_id", event.ID, "error", err)
		}
	}

	return event, nil
}

// correlationID prefers the middleware request ID, then the active trace ID,
// then a fresh UUID, so causally related events share an identifier
// whenever one exists.
func (s *Service) correlationID(ctx context.Context, span trace.Span) string {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		return requestID
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}

func validate(d audit.Descriptor) error {
	if d.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "event type is required")
	}
	if d.Category == "" {
		return dErrors.New(dErrors.CodeValidation, "event category is required")
	}
	if d.Severity == "" {
		return dErrors.New(dErrors.CodeValidation, "event severity is required")
	}
	if d.Severity.Rank() == 0 {
		return dErrors.Newf(dErrors.CodeValidation, "unknown severity %q", d.Severity)
	}
	if d.Description == "" {
		return dErrors.New(dErrors.CodeValidation, "event description is required")
	}
	return nil
}
