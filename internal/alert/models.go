// Package alert holds the standing alert rules and the engine that evaluates
// them against freshly ingested events (inline) and on a scheduled pass
// (threshold-over-time-window rules).
package alert

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"bitacora/internal/audit"
)

// Conditions filter the events a rule cares about. Empty dimensions match
// everything, so a rule with zero conditions is a global counter.
type Conditions struct {
	Types      []audit.EventType `json:"types,omitempty"`
	Categories []audit.Category  `json:"categories,omitempty"`
	Severities []audit.Severity  `json:"severities,omitempty"`
	ActorIDs   []string          `json:"actor_ids,omitempty"`
}

// Matches reports whether the event falls inside the rule's scope.
func (c Conditions) Matches(e audit.Event) bool {
	return c.toFilter().Matches(e)
}

// WindowFilter expresses the conditions as a store query over the trailing
// window ending at now.
func (c Conditions) WindowFilter(now time.Time, windowMinutes int) audit.Filter {
	f := c.toFilter()
	f.From = now.Add(-time.Duration(windowMinutes) * time.Minute)
	f.To = now
	return f
}

func (c Conditions) toFilter() audit.Filter {
	return audit.Filter{
		Types:      c.Types,
		Categories: c.Categories,
		Severities: c.Severities,
		ActorIDs:   c.ActorIDs,
	}
}

// EvalState is the transient position of a rule in the evaluation state
// machine: idle → due → evaluating → satisfied/not-satisfied → idle.
// Only the bookkeeping fields on Rule survive between passes.
type EvalState string

const (
	EvalIdle         EvalState = "idle"
	EvalDue          EvalState = "due"
	EvalEvaluating   EvalState = "evaluating"
	EvalSatisfied    EvalState = "satisfied"
	EvalNotSatisfied EvalState = "not_satisfied"
	EvalTriggered    EvalState = "triggered"
)

// Rule is one standing alert condition. Rules with Threshold == 1 trigger
// inline on each matching event; higher thresholds are counted over the
// trailing window on the scheduled pass.
type Rule struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`

	Conditions Conditions     `json:"conditions"`
	Severity   audit.Severity `json:"severity"`

	// EvaluationEvery spaces out scheduled evaluations of this rule. Zero
	// means every scheduled pass.
	EvaluationEvery time.Duration `json:"evaluation_every,omitempty"`

	Threshold     int `json:"threshold"`
	WindowMinutes int `json:"window_minutes"`

	Recipients      []string `json:"recipients,omitempty"`
	Channels        []string `json:"channels,omitempty"`
	MessageTemplate string   `json:"message_template,omitempty"`

	Active bool `json:"active"`

	SuppressDuplicatesMinutes int `json:"suppress_duplicates_minutes"`

	// EscalationRecipients receive the notification when the rule keeps
	// firing; AutoActions name automatic responses run by the collaborator.
	EscalationRecipients []string `json:"escalation_recipients,omitempty"`
	AutoActions          []string `json:"auto_actions,omitempty"`

	// Bookkeeping, maintained by the engine.
	LastEvaluated *time.Time `json:"last_evaluated,omitempty"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	TriggerCount  int        `json:"trigger_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RenderMessage fills the rule's template, or composes the default message
// when no template is set. Templates may reference {rule_name},
// {event_description}, and {timestamp}.
func (r Rule) RenderMessage(e audit.Event, at time.Time) string {
	if r.MessageTemplate == "" {
		return r.Name + ": " + e.Description + " at " + at.UTC().Format(time.RFC3339)
	}
	replacer := strings.NewReplacer(
		"{rule_name}", r.Name,
		"{event_description}", e.Description,
		"{timestamp}", at.UTC().Format(time.RFC3339),
	)
	return replacer.Replace(r.MessageTemplate)
}

// Notification is the payload handed to the dispatch transport.
type Notification struct {
	RuleID      uuid.UUID      `json:"rule_id"`
	RuleName    string         `json:"rule_name"`
	Severity    audit.Severity `json:"severity"`
	Message     string         `json:"message"`
	Channels    []string       `json:"channels,omitempty"`
	Recipients  []string       `json:"recipients,omitempty"`
	EventID     uuid.UUID      `json:"event_id"`
	TriggeredAt time.Time      `json:"triggered_at"`
}
