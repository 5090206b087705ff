package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("rabbitmq connection is not established")

// Channel is the subset of *amqp.Channel used by publishers and consumers
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Broker is an open broker connection
type Broker interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer opens a broker connection
type Dialer func(url string) (Broker, error)

type amqpBroker struct {
	*amqp.Connection
}

func (b amqpBroker) Channel() (Channel, error) {
	ch, err := b.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP dials a real RabbitMQ server
func DialAMQP(url string) (Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpBroker{conn}, nil
}

// State is the connection manager state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectionConfig holds connection manager settings
type ConnectionConfig struct {
	URL     string
	Backoff time.Duration
	Logger  *zap.Logger
	Dial    Dialer
}

// Connection keeps one long-lived broker connection open. It redials with a
// fixed backoff after every failure until Close is called.
type Connection struct {
	url     string
	backoff time.Duration
	dial    Dialer
	logger  *zap.Logger

	mu          sync.RWMutex
	state       State
	broker      Broker
	reconnect   bool
	onConnected []func(Broker) error

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewConnection creates a connection manager. Nothing is dialed until Start.
func NewConnection(cfg ConnectionConfig) *Connection {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	if cfg.Dial == nil {
		cfg.Dial = DialAMQP
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Connection{
		url:       cfg.URL,
		backoff:   cfg.Backoff,
		dial:      cfg.Dial,
		logger:    cfg.Logger,
		state:     StateDisconnected,
		reconnect: true,
		done:      make(chan struct{}),
	}
}

// RegisterLifecycle starts the manager on app start and drains it on stop
func (c *Connection) RegisterLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := c.Close(); err != nil {
				c.logger.Error("failed to close rabbitmq connection", zap.Error(err))
				return err
			}
			c.logger.Info("rabbitmq connection closed")
			return nil
		},
	})
}

// OnConnected registers fn to run after every successful (re)connect. If the
// connection is already up, fn also runs immediately.
func (c *Connection) OnConnected(fn func(Broker) error) {
	c.mu.Lock()
	c.onConnected = append(c.onConnected, fn)
	broker := c.broker
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected {
		if err := fn(broker); err != nil {
			c.logger.Error("rabbitmq setup callback failed", zap.Error(err))
		}
	}
}

// State returns the current state
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Channel opens a channel on the current connection
func (c *Connection) Channel() (Channel, error) {
	c.mu.RLock()
	broker, state := c.broker, c.state
	c.mu.RUnlock()

	if state != StateConnected || broker == nil {
		return nil, ErrNotConnected
	}
	return broker.Channel()
}

// Start launches the background connect loop
func (c *Connection) Start() {
	c.wg.Add(1)
	go c.run()
}

func (c *Connection) run() {
	defer c.wg.Done()

	for {
		if !c.setState(StateConnecting) {
			return
		}
		c.logger.Info("attempting to connect to RabbitMQ...")

		broker, err := c.dial(c.url)
		if err != nil {
			c.logger.Error("rabbitmq connection failed, retrying",
				zap.Error(err),
				zap.Duration("backoff", c.backoff))
			c.setState(StateDisconnected)
			if !c.wait() {
				return
			}
			continue
		}

		closed := broker.NotifyClose(make(chan *amqp.Error, 1))

		c.mu.Lock()
		if !c.reconnect {
			c.mu.Unlock()
			_ = broker.Close()
			return
		}
		c.broker = broker
		c.state = StateConnected
		callbacks := append([]func(Broker) error(nil), c.onConnected...)
		c.mu.Unlock()

		c.logger.Info("rabbitmq connection established successfully")
		for _, fn := range callbacks {
			if err := fn(broker); err != nil {
				c.logger.Error("rabbitmq setup callback failed", zap.Error(err))
			}
		}

		select {
		case <-c.done:
			return
		case amqpErr := <-closed:
			c.mu.Lock()
			c.broker = nil
			if c.reconnect {
				c.state = StateDisconnected
			}
			c.mu.Unlock()
			c.logger.Warn("rabbitmq connection lost", zap.Any("reason", amqpErr))
			if !c.wait() {
				return
			}
		}
	}
}

// setState moves to s unless the manager is draining
func (c *Connection) setState(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reconnect {
		return false
	}
	c.state = s
	return true
}

func (c *Connection) wait() bool {
	timer := time.NewTimer(c.backoff)
	defer timer.Stop()
	select {
	case <-c.done:
		return false
	case <-timer.C:
		return true
	}
}

// Close disables reconnection, then closes the live connection and waits for
// the connect loop to exit.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.reconnect = false
	c.state = StateDraining
	broker := c.broker
	c.broker = nil
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })

	var err error
	if broker != nil {
		err = broker.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()

	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("failed to close rabbitmq connection: %w", err)
	}
	return nil
}
