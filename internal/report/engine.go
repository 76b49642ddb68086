package report

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bitacora/internal/audit"
	"bitacora/internal/audit/store"
	"bitacora/internal/authz"
	"bitacora/internal/platform/metrics"
)

// Recorder writes the report/export invocation back into the audit trail.
type Recorder interface {
	Record(ctx context.Context, d audit.Descriptor) (audit.Event, error)
}

// Codec renders report rows into a binary document format (spreadsheet,
// PDF). The engine defines the data; the binary encoding is the
// collaborator's concern.
type Codec interface {
	Encode(report Report) ([]byte, error)
}

// Engine aggregates statistics and produces reports and export artifacts
// through the event store gateway.
type Engine struct {
	events     store.EventStore
	authz      authz.Authorizer
	recorder   Recorder
	logger     *slog.Logger
	metrics    *metrics.Metrics
	thresholds Thresholds
	clock      func() time.Time

	// exportKey encrypts export artifacts when requested. Must be 32 bytes.
	exportKey []byte

	codecs map[Format]Codec
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithThresholds(t Thresholds) Option {
	return func(e *Engine) {
		e.thresholds = t
	}
}

// WithExportKey sets the 32-byte key used for encrypted exports.
func WithExportKey(key []byte) Option {
	return func(e *Engine) {
		e.exportKey = key
	}
}

// WithCodec registers a binary document codec for a format.
func WithCodec(format Format, codec Codec) Option {
	return func(e *Engine) {
		e.codecs[format] = codec
	}
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func NewEngine(events store.EventStore, authorizer authz.Authorizer, opts ...Option) (*Engine, error) {
	if events == nil {
		return nil, errors.New("event store is required")
	}
	if authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	e := &Engine{
		events:     events,
		authz:      authorizer,
		logger:     slog.Default(),
		thresholds: DefaultThresholds(),
		clock:      time.Now,
		codecs:     make(map[Format]Codec),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) recordInvocation(ctx context.Context, d audit.Descriptor) {
	if e.recorder == nil {
		return
	}
	if _, err := e.recorder.Record(ctx, d); err != nil {
		e.logger.Error("failed to record report invocation", "type", d.Type, "error", err)
	}
}
