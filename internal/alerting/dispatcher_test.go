package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// blockingChecker holds every check until release is closed
type blockingChecker struct {
	release chan struct{}
	mu      sync.Mutex
	devices []string
	panics  bool
}

func (c *blockingChecker) ProcessBatch(ctx context.Context, deviceID, sensorType string, readings []telemetry.Reading) {
	select {
	case <-c.release:
	case <-ctx.Done():
		return
	}
	c.mu.Lock()
	c.devices = append(c.devices, deviceID)
	c.mu.Unlock()
	if c.panics {
		panic("sink bug")
	}
}

func (c *blockingChecker) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.devices...)
}

func gasReading() []telemetry.Reading {
	return []telemetry.Reading{{Metric: "gas", Value: telemetry.Number(80), Timestamp: time.Now()}}
}

func TestDispatcher_ProcessBatchDoesNotWaitForChecks(t *testing.T) {
	checker := &blockingChecker{release: make(chan struct{})}
	d := NewDispatcher(checker, 2, 8, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	returned := make(chan struct{})
	go func() {
		d.ProcessBatch(context.Background(), "dev-1", "mq4", gasReading())
		d.ProcessBatch(context.Background(), "dev-2", "mq4", gasReading())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("ProcessBatch blocked on a slow check")
	}
	assert.Empty(t, checker.seen())

	close(checker.release)
	require.Eventually(t, func() bool { return len(checker.seen()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"dev-1", "dev-2"}, checker.seen())

	cancel()
	<-done
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	checker := &blockingChecker{release: make(chan struct{})}
	d := NewDispatcher(checker, 1, 1, zap.NewNop())

	// no workers running: the first batch fills the queue
	d.ProcessBatch(context.Background(), "dev-1", "mq4", gasReading())
	d.ProcessBatch(context.Background(), "dev-2", "mq4", gasReading())
	assert.Equal(t, 1, len(d.queue))

	close(checker.release)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	require.Eventually(t, func() bool { return len(checker.seen()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"dev-1"}, checker.seen())
	cancel()
}

func TestDispatcher_SurvivesPanickingCheck(t *testing.T) {
	checker := &blockingChecker{release: make(chan struct{}), panics: true}
	close(checker.release)
	d := NewDispatcher(checker, 1, 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.ProcessBatch(context.Background(), "dev-1", "mq4", gasReading())
	d.ProcessBatch(context.Background(), "dev-2", "mq4", gasReading())
	require.Eventually(t, func() bool { return len(checker.seen()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_UsesEngine(t *testing.T) {
	clock := newFakeClock()
	sink := &recordingSink{}
	engine := newTestEngine(clock, labDirectory(), sink)
	d := NewDispatcher(engine, 1, 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.ProcessBatch(context.Background(), "dev-1", "mq4", []telemetry.Reading{
		{Metric: "gas", Value: telemetry.Number(51), Timestamp: clock.Now()},
	})
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}
