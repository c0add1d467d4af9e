// internal/app/system/events/events.go
//
// Package events delivers engine events to downstream collaborators
// (pending pool, notification senders). Routing keys are the
// scheduling.Event* constants.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultExchange is the topic exchange events are published to.
const DefaultExchange = "dikshahub.events"

var (
	_ scheduling.Publisher = (*LogPublisher)(nil)
	_ scheduling.Publisher = (*AMQPPublisher)(nil)
)

// LogPublisher writes events to zap. It is used when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{log: logger}
}

func (p *LogPublisher) Publish(_ context.Context, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	p.log.Info("event published",
		zap.String("routing_key", key),
		zap.ByteString("payload", b))
	return nil
}

// AMQPPublisher publishes JSON events to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPPublisher dials url and declares exchange (topic, durable).
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Exchange returns the exchange events go to.
func (p *AMQPPublisher) Exchange() string { return p.exchange }

// Publish implements scheduling.Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, key string, payload any) error {
	return p.PublishJSON(ctx, key, payload)
}

func (p *AMQPPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         b,
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
