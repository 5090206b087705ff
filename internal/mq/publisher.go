package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher emits events on a fanout exchange. Delivery is at most once:
// while the connection is down, Publish returns ErrNotConnected and nothing
// is queued.
type Publisher struct {
	exchange string
	logger   *zap.Logger

	mu      sync.Mutex
	channel Channel
}

// NewPublisher creates a publisher that (re)declares its exchange on every
// connect
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) *Publisher {
	p := &Publisher{
		exchange: exchange,
		logger:   logger,
	}
	conn.OnConnected(p.setup)
	return p
}

func (p *Publisher) setup(broker Broker) error {
	ch, err := broker.Channel()
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		p.exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.mu.Lock()
	old := p.channel
	p.channel = ch
	p.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	p.logger.Info("publisher ready", zap.String("exchange", p.exchange))
	return nil
}

// Publish encodes event as JSON and publishes it to the exchange
func (p *Publisher) Publish(ctx context.Context, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return ErrNotConnected
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		"",    // fanout ignores the routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Transient,
		},
	)
	if err != nil {
		// the channel dies with its connection; wait for the next setup
		p.channel = nil
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	p.logger.Debug("published event", zap.String("exchange", p.exchange), zap.Int("body_size", len(body)))
	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		err := p.channel.Close()
		p.channel = nil
		return err
	}
	return nil
}
