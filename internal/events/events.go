// Package events publishes inventory lifecycle events for downstream
// consumers (notifications, reporting).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const Exchange = "bloodbank.inventory"

type Kind string

const (
	UnitAdded     Kind = "unit.added"
	UnitUpdated   Kind = "unit.updated"
	UnitRemoved   Kind = "unit.removed"
	UnitDiscarded Kind = "unit.discarded"
	UnitExpired   Kind = "unit.expired"
)

type InventoryEvent struct {
	Kind        Kind      `json:"kind"`
	UnitID      string    `json:"unit_id"`
	BatchNumber string    `json:"batch_number"`
	BloodType   string    `json:"blood_type"`
	Quantity    int       `json:"quantity"`
	Status      string    `json:"status"`
	Actor       string    `json:"actor,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e InventoryEvent) error
}

// LogPublisher writes events to the log. Used when AMQP_URL is not set.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "events")}
}

func (p *LogPublisher) Publish(ctx context.Context, e InventoryEvent) error {
	p.logger.InfoContext(ctx, "inventory event",
		"kind", e.Kind,
		"unit_id", e.UnitID,
		"batch_number", e.BatchNumber,
		"status", e.Status,
		"quantity", e.Quantity,
	)
	return nil
}

// AMQPPublisher publishes persistent JSON messages to a durable topic
// exchange, routed by event kind.
type AMQPPublisher struct {
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		Exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e InventoryEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, Exchange, string(e.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt,
		Type:         string(e.Kind),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}
