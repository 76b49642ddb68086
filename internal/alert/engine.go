package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bitacora/internal/audit"
	"bitacora/internal/audit/store"
	"bitacora/internal/platform/metrics"
	dErrors "bitacora/pkg/domain-errors"
)

// Notifier hands a rendered notification to the dispatch transport. Delivery
// is the collaborator's problem: the engine logs failures and moves on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ActionRunner executes an automatic response configured on a rule.
type ActionRunner interface {
	Execute(ctx context.Context, action string, triggering audit.Event) error
}

// Recorder writes the alert activation back through the ingestor so each
// trigger leaves its own audit record.
type Recorder interface {
	Record(ctx context.Context, d audit.Descriptor) (audit.Event, error)
}

// Engine holds the active rule set and evaluates it in two modes: inline on
// every ingested event (threshold 1) and on the scheduled pass (threshold
// over a trailing window). The rule map is process-wide shared state guarded
// by a mutex; the RuleStore keeps it durable.
type Engine struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]Rule

	ruleStore RuleStore
	events    store.EventStore
	notifier  Notifier
	actions   ActionRunner
	recorder  Recorder
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

func WithActionRunner(actions ActionRunner) Option {
	return func(e *Engine) {
		e.actions = actions
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

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func NewEngine(ruleStore RuleStore, events store.EventStore, opts ...Option) (*Engine, error) {
	if ruleStore == nil {
		return nil, errors.New("rule store is required")
	}
	if events == nil {
		return nil, errors.New("event store is required")
	}
	e := &Engine{
		rules:     make(map[uuid.UUID]Rule),
		ruleStore: ruleStore,
		events:    events,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Load rebuilds the in-memory rule set from the durable store. Call at
// startup before ingestion begins.
func (e *Engine) Load(ctx context.Context) error {
	rules, err := e.ruleStore.FindAll(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load alert rules")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = make(map[uuid.UUID]Rule, len(rules))
	for _, r := range rules {
		e.rules[r.ID] = r
	}
	return nil
}

// ConfigureRule validates and persists a rule, then refreshes the cache.
// Creating and updating share this path; an incoming zero ID means create.
func (e *Engine) ConfigureRule(ctx context.Context, rule Rule) (Rule, error) {
	if rule.Name == "" {
		return Rule{}, dErrors.New(dErrors.CodeValidation, "alert rule requires a name")
	}
	if rule.Threshold < 1 {
		return Rule{}, dErrors.New(dErrors.CodeValidation, "alert threshold must be at least 1")
	}
	if rule.Threshold > 1 && rule.WindowMinutes < 1 {
		return Rule{}, dErrors.New(dErrors.CodeValidation, "windowed alert rules require a positive window")
	}
	if rule.SuppressDuplicatesMinutes < 0 {
		return Rule{}, dErrors.New(dErrors.CodeValidation, "suppression window cannot be negative")
	}

	now := e.clock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
		rule.CreatedAt = now
	} else {
		e.mu.RLock()
		existing, ok := e.rules[rule.ID]
		e.mu.RUnlock()
		if !ok {
			return Rule{}, dErrors.New(dErrors.CodeNotFound, "alert rule not found")
		}
		rule.CreatedAt = existing.CreatedAt
		rule.LastEvaluated = existing.LastEvaluated
		rule.LastTriggered = existing.LastTriggered
		rule.TriggerCount = existing.TriggerCount
	}
	rule.UpdatedAt = now

	if err := e.ruleStore.Save(ctx, rule); err != nil {
		return Rule{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist alert rule")
	}

	e.mu.Lock()
	e.rules[rule.ID] = rule
	e.mu.Unlock()

	e.logger.Info("alert rule configured",
		"rule_id", rule.ID,
		"name", rule.Name,
		"threshold", rule.Threshold,
		"window_minutes", rule.WindowMinutes,
	)
	return rule, nil
}

// Rule returns one rule by ID.
func (e *Engine) Rule(id uuid.UUID) (Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if r, ok := e.rules[id]; ok {
		return r, nil
	}
	return Rule{}, dErrors.New(dErrors.CodeNotFound, "alert rule not found")
}

// Rules returns a snapshot of all rules.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	return out
}

// EvaluateInline runs against one freshly ingested event. Only rules with
// threshold 1 trigger here; windowed rules wait for the scheduled pass.
// Alert activation events are skipped so a trigger cannot cascade into
// another trigger.
func (e *Engine) EvaluateInline(ctx context.Context, event audit.Event) {
	if event.Type == audit.EventSecurityAlert {
		return
	}

	for _, rule := range e.Rules() {
		if !rule.Active || rule.Threshold > 1 {
			continue
		}
		if !rule.Conditions.Matches(event) {
			continue
		}
		e.trigger(ctx, rule, event)
	}
}

// EvaluateWindowed runs the scheduled pass: each due windowed rule counts
// matching events in its trailing window and triggers when the threshold is
// reached or exceeded. A failing rule is logged and never aborts the rest.
func (e *Engine) EvaluateWindowed(ctx context.Context) {
	now := e.clock()

	for _, rule := range e.Rules() {
		state := e.advance(rule, now)
		if state != EvalDue {
			continue
		}
		if err := e.evaluateRule(ctx, rule, now); err != nil {
			e.logger.Error("windowed alert evaluation failed",
				"rule_id", rule.ID,
				"name", rule.Name,
				"error", err,
			)
		}
	}
}

// advance decides whether a rule moves from idle to due this pass. Inactive
// rules stay idle and their lastEvaluated is not touched.
func (e *Engine) advance(rule Rule, now time.Time) EvalState {
	if !rule.Active || rule.Threshold <= 1 {
		return EvalIdle
	}
	if rule.EvaluationEvery > 0 && rule.LastEvaluated != nil &&
		now.Sub(*rule.LastEvaluated) < rule.EvaluationEvery {
		return EvalIdle
	}
	return EvalDue
}

func (e *Engine) evaluateRule(ctx context.Context, rule Rule, now time.Time) error {
	filter := rule.Conditions.WindowFilter(now, rule.WindowMinutes)
	count, err := e.events.Count(ctx, filter)
	if err != nil {
		return err
	}

	e.touchEvaluated(rule.ID, now)

	if count < rule.Threshold {
		return nil
	}

	// Satisfied. Attribute the activation to the most recent matching event
	// so the audit record carries its correlation ID.
	filter.SortField = "timestamp"
	filter.SortDirection = audit.SortDesc
	page, err := e.events.FindMany(ctx, filter, 1, 1)
	if err != nil {
		return err
	}
	var latest audit.Event
	if len(page.Data) > 0 {
		latest = page.Data[0]
	}

	e.trigger(ctx, rule, latest)
	return nil
}

// trigger applies suppression, updates bookkeeping, and fires the side
// effects: notification dispatch, automatic actions, and the activation
// audit record. Dispatch failures are logged, never retried here.
func (e *Engine) trigger(ctx context.Context, rule Rule, event audit.Event) {
	now := e.clock()

	e.mu.Lock()
	current, ok := e.rules[rule.ID]
	if !ok {
		e.mu.Unlock()
		return
	}
	if current.SuppressDuplicatesMinutes > 0 && current.LastTriggered != nil {
		window := time.Duration(current.SuppressDuplicatesMinutes) * time.Minute
		if now.Sub(*current.LastTriggered) < window {
			e.mu.Unlock()
			if e.metrics != nil {
				e.metrics.AlertsSuppressed.Inc()
			}
			return
		}
	}
	triggeredAt := now
	current.LastTriggered = &triggeredAt
	current.TriggerCount++
	e.rules[rule.ID] = current
	e.mu.Unlock()

	if err := e.ruleStore.Save(ctx, current); err != nil {
		e.logger.Error("failed to persist rule bookkeeping", "rule_id", rule.ID, "error", err)
	}
	if e.metrics != nil {
		e.metrics.AlertsTriggered.Inc()
	}

	message := current.RenderMessage(event, now)

	if e.notifier != nil {
		recipients := current.Recipients
		if len(current.EscalationRecipients) > 0 && current.TriggerCount > 1 {
			recipients = append(append([]string{}, recipients...), current.EscalationRecipients...)
		}
		notification := Notification{
			RuleID:      current.ID,
			RuleName:    current.Name,
			Severity:    current.Severity,
			Message:     message,
			Channels:    current.Channels,
			Recipients:  recipients,
			EventID:     event.ID,
			TriggeredAt: now,
		}
		if err := e.notifier.Notify(ctx, notification); err != nil {
			e.logger.Error("notification dispatch failed", "rule_id", current.ID, "error", err)
		}
	}

	if e.actions != nil {
		for _, action := range current.AutoActions {
			if err := e.actions.Execute(ctx, action, event); err != nil {
				e.logger.Error("automatic action failed",
					"rule_id", current.ID, "action", action, "error", err)
			}
		}
	}

	if e.recorder != nil {
		_, err := e.recorder.Record(ctx, audit.Descriptor{
			Type:               audit.EventSecurityAlert,
			Category:           audit.CategorySecurity,
			Severity:           current.Severity,
			Description:        message,
			CorrelationID:      event.CorrelationID,
			ComplianceCritical: true,
			Payload: map[string]any{
				"rule_id":       current.ID.String(),
				"rule_name":     current.Name,
				"trigger_count": current.TriggerCount,
			},
			Timestamp: now,
		})
		if err != nil {
			e.logger.Error("failed to record alert activation", "rule_id", current.ID, "error", err)
		}
	}
}

func (e *Engine) touchEvaluated(id uuid.UUID, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rule, ok := e.rules[id]; ok {
		rule.LastEvaluated = &at
		e.rules[id] = rule
	}
}
