// Package messaging publishes domain events to RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/pkg/config"
)

// Publisher sends JSON events to one durable queue with publisher confirms.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	confirms chan amqp.Confirmation
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewPublisher dials RabbitMQ, declares the queue and enables confirms.
func NewPublisher(cfg config.EventsConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &Publisher{
		conn:     conn,
		ch:       ch,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		logger:   logger,
	}, nil
}

// Publish marshals event and waits for the broker to confirm it.
func (p *Publisher) Publish(ctx context.Context, eventType string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Type:         eventType,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	select {
	case confirmed := <-p.confirms:
		if !confirmed.Ack {
			return fmt.Errorf("publish %s event: broker rejected message", eventType)
		}
	case <-ctx.Done():
		return fmt.Errorf("publish %s event: %w", eventType, ctx.Err())
	}
	p.logger.Debug("event published", zap.String("type", eventType), zap.String("queue", p.queue))
	return nil
}

// Close shuts the channel and connection down.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.ch.Close(); err != nil {
		p.logger.Warn("close rabbitmq channel", zap.Error(err))
	}
	return p.conn.Close()
}
