// Package kafka publishes audit notifications to Kafka topics with
// fire-and-forget semantics. Delivery failures are logged and counted but
// never propagate back into the recording path.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"bitacora/internal/alert"
	"bitacora/internal/audit"
	"bitacora/internal/platform/metrics"
)

// Notifier produces alert notifications and notification-flagged events.
type Notifier struct {
	client      *kgo.Client
	alertTopic  string
	eventsTopic string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// NewNotifier connects to the brokers and returns a producing notifier.
func NewNotifier(brokers []string, alertTopic, eventsTopic string, opts ...Option) (*Notifier, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka brokers: %w", err)
	}
	n := &Notifier{
		client:      client,
		alertTopic:  alertTopic,
		eventsTopic: eventsTopic,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify publishes an alert notification, keyed by rule ID so per-rule
// ordering is preserved.
func (n *Notifier) Notify(ctx context.Context, notification alert.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	n.produce(ctx, &kgo.Record{
		Topic: n.alertTopic,
		Key:   []byte(notification.RuleID.String()),
		Value: payload,
	})
	return nil
}

// NotifyEvent publishes an event that was flagged as requiring notification,
// keyed by correlation ID.
func (n *Notifier) NotifyEvent(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	n.produce(ctx, &kgo.Record{
		Topic: n.eventsTopic,
		Key:   []byte(event.CorrelationID),
		Value: payload,
	})
	return nil
}

func (n *Notifier) produce(ctx context.Context, record *kgo.Record) {
	n.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			n.logger.Error("kafka produce failed", "topic", r.Topic, "error", err)
			return
		}
		if n.metrics != nil {
			n.metrics.NotificationsPublished.Inc()
		}
	})
}

// Close flushes pending records and releases the client.
func (n *Notifier) Close(ctx context.Context) error {
	if err := n.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	n.client.Close()
	return nil
}
