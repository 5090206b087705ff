package alerting

import (
	"context"
	"sync"

	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
	"go.uber.org/zap"
)

// BatchChecker runs threshold checks for one stored batch
type BatchChecker interface {
	ProcessBatch(ctx context.Context, deviceID, sensorType string, readings []telemetry.Reading)
}

type batch struct {
	deviceID   string
	sensorType string
	readings   []telemetry.Reading
}

// Dispatcher moves alert checks off the ingest path. Batches wait on a
// bounded queue for a fixed set of workers; when the queue is full the batch
// is dropped with a warning.
type Dispatcher struct {
	checker BatchChecker
	queue   chan batch
	workers int
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. Nothing is checked until Run.
func NewDispatcher(checker BatchChecker, workers, queueSize int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		checker: checker,
		queue:   make(chan batch, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// ProcessBatch queues a batch and returns immediately. ctx only covers the
// caller's request, so the check runs under the context given to Run.
func (d *Dispatcher) ProcessBatch(_ context.Context, deviceID, sensorType string, readings []telemetry.Reading) {
	b := batch{
		deviceID:   deviceID,
		sensorType: sensorType,
		readings:   append([]telemetry.Reading(nil), readings...),
	}
	select {
	case d.queue <- b:
	default:
		d.logger.Warn("alert queue full, dropping batch",
			zap.String("device_id", deviceID),
			zap.String("sensor_type", sensorType),
			zap.Int("queue_size", cap(d.queue)),
		)
	}
}

// Run checks queued batches until ctx is done. Batches still queued then
// are discarded.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()

	if pending := len(d.queue); pending > 0 {
		d.logger.Info("alert dispatcher stopped with queued batches", zap.Int("discarded", pending))
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-d.queue:
			d.check(ctx, b)
		}
	}
}

func (d *Dispatcher) check(ctx context.Context, b batch) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("alert check panicked",
				zap.Any("panic", r),
				zap.String("device_id", b.deviceID),
			)
		}
	}()
	d.checker.ProcessBatch(ctx, b.deviceID, b.sensorType, b.readings)
}
