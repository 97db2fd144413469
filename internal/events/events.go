// Package events publishes handoff transition events to RabbitMQ for
// operator tooling. The publisher is optional: a nil *Publisher is a safe
// no-op, and publish failures are logged without affecting the webhook path.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Event type constants carried in the envelope meta.
const (
	// TypeEngaged is emitted on an AI_ACTIVE -> HANDED_OFF transition.
	TypeEngaged = "handoff.engaged.v1"
	// TypeResolved is emitted on a HANDED_OFF -> AI_ACTIVE transition.
	TypeResolved = "handoff.resolved.v1"
)

// DefaultExchange is the topic exchange transition events are published to.
const DefaultExchange = "handoff"

// Meta identifies and timestamps an event envelope.
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlation_id"`
	Time          time.Time `json:"time"`
}

// Envelope is the wire shape for published events.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// TransitionEvent describes one handoff state change for a sender.
type TransitionEvent struct {
	Sender string    `json:"sender"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	At     time.Time `json:"at"`
}

// Opts holds configuration options for the publisher.
type Opts struct {
	URL      string
	Exchange string
}

// Option defines a configuration option for the publisher.
type Option func(*Opts)

// WithURL sets the AMQP broker URL.
func WithURL(u string) Option {
	return func(o *Opts) { o.URL = u }
}

// WithExchange overrides the topic exchange name.
func WithExchange(ex string) Option {
	return func(o *Opts) { o.Exchange = ex }
}

// Publisher publishes transition events to a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewPublisher connects to RabbitMQ and declares the exchange. The URL falls
// back to the AMQP_URL environment variable.
func NewPublisher(opts ...Option) (*Publisher, error) {
	cfg := Opts{Exchange: DefaultExchange}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		cfg.URL = os.Getenv("AMQP_URL")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", cfg.Exchange, err)
	}
	slog.Info("events.NewPublisher: connected", "exchange", cfg.Exchange)
	return &Publisher{conn: conn, channel: ch, exchange: cfg.Exchange}, nil
}

// Publish emits one transition event. The event type doubles as the routing
// key. Failures are logged and returned, but callers on the webhook path
// treat them as non-fatal. A nil publisher is a no-op.
func (p *Publisher) Publish(ctx context.Context, eventType string, ev TransitionEvent) error {
	if p == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	env := Envelope{
		Meta: Meta{
			ID:   uuid.NewString(),
			Type: eventType,
			Time: time.Now().UTC(),
		},
		Data: ev,
	}
	env.Meta.CorrelationID = env.Meta.ID

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, eventType, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          eventType,
		Timestamp:     env.Meta.Time,
	})
	if err != nil {
		slog.Error("events.Publish failed", "error", err, "type", eventType, "sender", ev.Sender)
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	slog.Debug("events.Publish: event published", "type", eventType, "sender", ev.Sender)
	return nil
}

// Close releases the channel and connection. Safe on a nil publisher.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
