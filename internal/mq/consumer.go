package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MessageHandler is a function that processes a message
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer binds a queue to a fanout exchange and hands every delivery to a
// handler. It resumes consuming after each reconnect.
type Consumer struct {
	exchange         string
	queue            string
	prefetchCount    int
	logger           *zap.Logger
	messageProcessor MessageHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	channel Channel
	wg      sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Connection       *Connection
	Exchange         string
	Queue            string
	PrefetchCount    int
	Logger           *zap.Logger
	MessageProcessor MessageHandler
}

// NewConsumer creates a consumer. Consumption begins once the connection is up.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		exchange:         cfg.Exchange,
		queue:            cfg.Queue,
		prefetchCount:    cfg.PrefetchCount,
		logger:           cfg.Logger,
		messageProcessor: cfg.MessageProcessor,
		ctx:              ctx,
		cancel:           cancel,
	}
	cfg.Connection.OnConnected(c.setup)
	return c
}

func (c *Consumer) setup(broker Broker) error {
	if c.ctx.Err() != nil {
		return nil
	}

	ch, err := broker.Channel()
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	err = ch.ExchangeDeclare(
		c.exchange,
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

	_, err = ch.QueueDeclare(
		c.queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(c.queue, "", c.exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.mu.Lock()
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("consumer started",
		zap.String("queue", c.queue),
		zap.String("exchange", c.exchange),
		zap.Int("prefetch", c.prefetchCount),
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				c.logger.Info("consumer context cancelled, stopping")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("message channel closed")
					return
				}
				c.processMessage(c.ctx, msg)
			}
		}
	}()

	return nil
}

func (c *Consumer) processMessage(ctx context.Context, msg amqp.Delivery) {
	c.logger.Debug("received message from queue",
		zap.String("queue", c.queue),
		zap.Int("body_size", len(msg.Body)),
	)

	if err := c.messageProcessor(ctx, msg.Body); err != nil {
		c.logger.Error("failed to process message", zap.Error(err), zap.String("queue", c.queue))

		// the event is a cache-warming signal; a bad one is dropped, not requeued
		if nackErr := msg.Nack(false, false); nackErr != nil {
			c.logger.Error("failed to NACK message", zap.Error(nackErr))
		}
		return
	}

	if ackErr := msg.Ack(false); ackErr != nil {
		c.logger.Error("failed to ACK message", zap.Error(ackErr))
	}
}

// Close stops consumption and closes the consumer channel
func (c *Consumer) Close() error {
	c.cancel()

	c.mu.Lock()
	ch := c.channel
	c.channel = nil
	c.mu.Unlock()

	var err error
	if ch != nil {
		err = ch.Close()
	}
	c.wg.Wait()
	return err
}

// RegisterLifecycle closes the consumer when the app stops
func (c *Consumer) RegisterLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStop: func(stopCtx context.Context) error {
			if err := c.Close(); err != nil {
				c.logger.Error("failed to close consumer channel", zap.Error(err))
				return err
			}
			c.logger.Info("consumer stopped")
			return nil
		},
	})
}
