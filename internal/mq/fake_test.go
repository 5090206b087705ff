package mq

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	mu         sync.Mutex
	exchanges  map[string]string
	bindings   []string
	published  []amqp.Publishing
	deliveries chan amqp.Delivery
	publishErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		exchanges:  make(map[string]string),
		deliveries: make(chan amqp.Delivery, 8),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, name+"->"+exchange)
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error { return nil }

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeBroker struct {
	mu       sync.Mutex
	channel  *fakeChannel
	notify   chan *amqp.Error
	closed   bool
	closeErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{channel: newFakeChannel()}
}

func (b *fakeBroker) Channel() (Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, amqp.ErrClosed
	}
	return b.channel, nil
}

func (b *fakeBroker) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notify = receiver
	return receiver
}

// drop simulates a broker-side connection loss
func (b *fakeBroker) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.notify <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker restarted"}
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.closeErr
}

func (b *fakeBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// scriptedDialer hands out brokers in order and fails once they run out
type scriptedDialer struct {
	mu      sync.Mutex
	brokers []*fakeBroker
	calls   int
}

func (d *scriptedDialer) dial(url string) (Broker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.brokers) == 0 {
		return nil, errors.New("connection refused")
	}
	b := d.brokers[0]
	d.brokers = d.brokers[1:]
	return b, nil
}

func (d *scriptedDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeAcknowledger struct {
	mu     sync.Mutex
	acks   int
	nacks  int
	signal chan struct{}
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	a.acks++
	a.mu.Unlock()
	a.signal <- struct{}{}
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	a.nacks++
	a.mu.Unlock()
	a.signal <- struct{}{}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error { return nil }
