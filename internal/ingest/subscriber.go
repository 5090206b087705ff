package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Ingester stores one decoded sensor message
type Ingester interface {
	Ingest(ctx context.Context, deviceID string, msg telemetry.Message) (*telemetry.Record, error)
}

// ParseTopic extracts the device id from devices/{deviceId}/sensors
func ParseTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "devices" || parts[2] != "sensors" {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	if parts[1] == "" {
		return "", fmt.Errorf("missing device id in topic: %s", topic)
	}
	return parts[1], nil
}

// SubscriberConfig holds MQTT subscriber settings
type SubscriberConfig struct {
	BrokerURL        string
	ClientID         string
	Username         string
	Password         string
	Topic            string
	QoS              byte
	ReconnectBackoff time.Duration
	Workers          int
	QueueSize        int
	Ingester         Ingester
	Logger           *zap.Logger
}

type delivery struct {
	topic   string
	payload []byte
}

// Subscriber receives device messages from the MQTT broker and hands them to
// the ingester. Bad topics and payloads are logged and dropped. Deliveries
// are queued for a fixed set of workers so a slow ingest never holds the
// client's message router.
type Subscriber struct {
	client   mqtt.Client
	topic    string
	qos      byte
	ingester Ingester
	logger   *zap.Logger
	workers  int
	queue    chan delivery
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSubscriber creates a subscriber. Nothing connects until Start.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		ingester: cfg.Ingester,
		logger:   cfg.Logger,
		workers:  cfg.Workers,
		queue:    make(chan delivery, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(cfg.ReconnectBackoff)
	opts.SetMaxReconnectInterval(cfg.ReconnectBackoff)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	// handlers run on their own goroutines and only enqueue
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		s.logger.Info("mqtt reconnecting...")
	})

	s.client = mqtt.NewClient(opts)
	return s
}

func (s *Subscriber) onConnect(client mqtt.Client) {
	s.logger.Info("mqtt connected, subscribing", zap.String("topic", s.topic))

	token := client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.enqueue(msg.Topic(), msg.Payload())
	})
	go func() {
		if token.Wait() && token.Error() != nil {
			s.logger.Error("mqtt subscribe failed", zap.Error(token.Error()), zap.String("topic", s.topic))
			return
		}
		s.logger.Info("mqtt subscription active", zap.String("topic", s.topic))
	}()
}

// enqueue waits for queue space, so a full queue slows the broker down
// instead of dropping readings
func (s *Subscriber) enqueue(topic string, payload []byte) {
	select {
	case s.queue <- delivery{topic: topic, payload: payload}:
	case <-s.ctx.Done():
	}
}

func (s *Subscriber) runWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ctx.Done():
					return
				case d := <-s.queue:
					s.HandleMessage(d.topic, d.payload)
				}
			}
		}()
	}
}

func (s *Subscriber) stopWorkers() {
	s.cancel()
	s.wg.Wait()
}

// HandleMessage processes one delivery. It never panics.
func (s *Subscriber) HandleMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("mqtt message handler panicked", zap.Any("panic", r), zap.String("topic", topic))
		}
	}()

	deviceID, err := ParseTopic(topic)
	if err != nil {
		s.logger.Warn("dropping message", zap.Error(err))
		return
	}

	msg, err := telemetry.DecodeMessage(payload)
	if err != nil {
		s.logger.Warn("dropping malformed message",
			zap.Error(err),
			zap.String("device_id", deviceID),
			zap.ByteString("payload", payload),
		)
		return
	}

	if _, err := s.ingester.Ingest(s.ctx, deviceID, msg); err != nil {
		level := s.logger.Error
		if errors.Is(err, errs.ErrValidation) {
			level = s.logger.Warn
		}
		level("telemetry ingestion failed",
			zap.Error(err),
			zap.String("device_id", deviceID),
			zap.String("sensor_type", msg.SensorType()),
		)
	}
}

// Start connects in the background; the broker may come up later
func (s *Subscriber) Start() {
	s.runWorkers()
	s.logger.Info("attempting to connect to MQTT broker...", zap.Int("workers", s.workers))
	s.client.Connect()
}

// Close unsubscribes and disconnects
func (s *Subscriber) Close() {
	if s.client.IsConnectionOpen() {
		if token := s.client.Unsubscribe(s.topic); token.WaitTimeout(2*time.Second) && token.Error() != nil {
			s.logger.Warn("mqtt unsubscribe failed", zap.Error(token.Error()))
		}
	}
	s.client.Disconnect(250)
	s.stopWorkers()
	s.logger.Info("mqtt connection closed")
}

// RegisterLifecycle starts the subscriber on app start and closes it on stop
func (s *Subscriber) RegisterLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Close()
			return nil
		},
	})
}
