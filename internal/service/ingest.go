package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/internal/logging"
	"github.com/septivank/iot-telemetry-hub/internal/mq"
	"github.com/septivank/iot-telemetry-hub/internal/repository"
	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
	"github.com/septivank/iot-telemetry-hub/tools/timeparser"
	"go.uber.org/zap"
)

// NotificationTelemetryUpdate is the websocket notification type sent after
// every stored record.
const NotificationTelemetryUpdate = "telemetry_update"

// TelemetryStore is the persistence the telemetry services need
type TelemetryStore interface {
	InsertRecord(ctx context.Context, rec telemetry.Record) error
	Latest(ctx context.Context, deviceID, sensorType string) (*telemetry.Record, error)
	History(ctx context.Context, f repository.HistoryFilter) ([]telemetry.Record, error)
	MetricPoints(ctx context.Context, f repository.PointFilter) ([]telemetry.MetricPoint, error)
	AvailableMetrics(ctx context.Context, deviceID, sensorType string) ([]telemetry.SensorMetrics, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventPublisher emits cross-service events
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// AlertChecker inspects a stored batch for threshold breaches. Ingest calls
// it inline, so implementations should queue rather than dispatch.
type AlertChecker interface {
	ProcessBatch(ctx context.Context, deviceID, sensorType string, readings []telemetry.Reading)
}

// DeviceNotifier pushes live updates to clients watching a device
type DeviceNotifier interface {
	Notify(id, eventType string, data any) int
}

// IngestService stores sensor messages and fans them out to the latest-state
// publisher, the alert engine and live subscribers.
type IngestService struct {
	repo      TelemetryStore
	publisher EventPublisher
	alerts    AlertChecker
	notifier  DeviceNotifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewIngestService creates a new ingest service. publisher, alerts and
// notifier may be nil.
func NewIngestService(
	repo TelemetryStore,
	publisher EventPublisher,
	alerts AlertChecker,
	notifier DeviceNotifier,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		repo:      repo,
		publisher: publisher,
		alerts:    alerts,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Ingest validates and persists one message. Every timestamp must parse or
// nothing is stored. Once the record is stored, side-channel failures are
// logged and never returned.
func (s *IngestService) Ingest(ctx context.Context, deviceID string, msg telemetry.Message) (*telemetry.Record, error) {
	if deviceID == "" {
		return nil, errs.Validation("device id is required")
	}

	batch := msg.Normalize()
	if batch.SensorType == "" {
		return nil, errs.Validation("sensorType is required")
	}
	if len(batch.Readings) == 0 {
		return nil, errs.Validation("batch contains no readings")
	}

	readings, err := parseReadings(batch.Readings)
	if err != nil {
		return nil, err
	}

	rec := telemetry.Record{
		ID:         uuid.New(),
		DeviceID:   deviceID,
		SensorType: batch.SensorType,
		Readings:   readings,
		ReceivedAt: s.now().UTC(),
	}

	devLogger := logging.WithDevice(s.logger, deviceID, batch.SensorType)

	if err := s.repo.InsertRecord(ctx, rec); err != nil {
		devLogger.Error("failed to store telemetry record", zap.Error(err))
		return nil, fmt.Errorf("failed to store telemetry: %w", err)
	}

	devLogger.Info("telemetry stored",
		zap.String("record_id", rec.ID.String()),
		zap.Int("readings_count", len(readings)),
		zap.Bool("batch", msg.IsBatch()),
	)

	s.bestEffort(devLogger, "publish latest state", func() error {
		return s.publishLatest(ctx, devLogger, rec)
	})
	s.bestEffort(devLogger, "threshold alerts", func() error {
		if s.alerts != nil {
			s.alerts.ProcessBatch(ctx, deviceID, rec.SensorType, rec.Readings)
		}
		return nil
	})
	s.bestEffort(devLogger, "live notification", func() error {
		if s.notifier != nil {
			s.notifier.Notify(deviceID, NotificationTelemetryUpdate, rec)
		}
		return nil
	})

	return &rec, nil
}

func (s *IngestService) publishLatest(ctx context.Context, logger *zap.Logger, rec telemetry.Record) error {
	if s.publisher == nil {
		return nil
	}

	event := telemetry.NewDeviceUpdateEvent(rec.DeviceID, rec.SensorType, rec.Readings, s.now())
	err := s.publisher.Publish(ctx, event)
	if errors.Is(err, mq.ErrNotConnected) {
		logger.Warn("fanout channel not connected, latest-state event dropped")
		return nil
	}
	return err
}

// bestEffort runs fn and logs its error or panic instead of propagating it
func (s *IngestService) bestEffort(logger *zap.Logger, what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("side channel panicked", zap.String("side_channel", what), zap.Any("panic", r))
		}
	}()

	if err := fn(); err != nil {
		logger.Error("side channel failed", zap.String("side_channel", what), zap.Error(err))
	}
}

func parseReadings(raw []telemetry.RawReading) ([]telemetry.Reading, error) {
	readings := make([]telemetry.Reading, 0, len(raw))
	for i, r := range raw {
		if r.Metric == "" {
			return nil, errs.Validation("reading %d has no metric", i)
		}
		if !r.Value.IsValid() {
			return nil, errs.Validation("reading %d (%s) has no value", i, r.Metric)
		}
		ts, err := timeparser.ParseTimestamp(r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %d (%s): %v", errs.ErrValidation, i, r.Metric, err)
		}
		readings = append(readings, telemetry.Reading{
			Metric:    r.Metric,
			Value:     r.Value,
			Timestamp: ts,
		})
	}
	return readings, nil
}
