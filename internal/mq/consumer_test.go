package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConsumer_AcksHandledAndNacksFailed(t *testing.T) {
	broker := newFakeBroker()
	d := &scriptedDialer{brokers: []*fakeBroker{broker}}
	conn := newTestConnection(d)

	var bodies []string
	consumer := NewConsumer(ConsumerConfig{
		Connection:    conn,
		Exchange:      "device-updates",
		Queue:         "device-registry.latest",
		PrefetchCount: 10,
		Logger:        zap.NewNop(),
		MessageProcessor: func(ctx context.Context, body []byte) error {
			bodies = append(bodies, string(body))
			if string(body) == "bad" {
				return errors.New("cannot decode")
			}
			return nil
		},
	})

	conn.Start()
	require.Eventually(t, func() bool { return conn.State() == StateConnected }, time.Second, 5*time.Millisecond)

	ack := &fakeAcknowledger{signal: make(chan struct{}, 2)}
	broker.channel.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("good")}
	broker.channel.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("bad")}

	for i := 0; i < 2; i++ {
		select {
		case <-ack.signal:
		case <-time.After(time.Second):
			t.Fatal("delivery was not settled")
		}
	}

	require.NoError(t, consumer.Close())
	require.NoError(t, conn.Close())

	assert.Equal(t, []string{"good", "bad"}, bodies)
	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.Equal(t, []string{"device-registry.latest->device-updates"}, broker.channel.bindings)
	assert.Equal(t, "fanout", broker.channel.exchanges["device-updates"])
}
