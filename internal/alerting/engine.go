package alerting

import (
	"context"
	"time"

	"github.com/septivank/iot-telemetry-hub/internal/anomaly"
	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
	"github.com/septivank/iot-telemetry-hub/tools/timeparser"
	"go.uber.org/zap"
)

// DefaultTestMessage is sent by TestAlert when no message is given.
const DefaultTestMessage = "Test alert"

// Engine checks readings against thresholds and dispatches alerts, at most
// one per device metric per cooldown window.
type Engine struct {
	detector  *anomaly.Detector
	cooldown  *Cooldown
	directory Directory
	sink      Sink
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates an alert engine
func NewEngine(detector *anomaly.Detector, cooldown *Cooldown, directory Directory, sink Sink, logger *zap.Logger) *Engine {
	return &Engine{
		detector:  detector,
		cooldown:  cooldown,
		directory: directory,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckAndAlert evaluates one numeric reading. Errors are logged, never returned.
func (e *Engine) CheckAndAlert(ctx context.Context, deviceID, sensorType, metric string, value float64, ts time.Time) {
	threshold, ok := e.detector.Threshold(sensorType, metric)
	if !ok {
		return
	}

	breached, reason := e.detector.DetectAnomaly(sensorType, metric, value)
	if !breached {
		return
	}

	key := CooldownKey(deviceID, sensorType, metric)
	if !e.cooldown.Check(key) {
		e.logger.Debug("alert cooldown active, skipping", zap.String("key", key))
		return
	}

	// check and record are not atomic across the lookup and dispatch below;
	// two concurrent breaches for one key may both fire
	info, err := e.directory.Lookup(ctx, deviceID)
	if err != nil {
		e.logger.Error("could not resolve device for alert",
			zap.Error(err),
			zap.String("device_id", deviceID),
			zap.String("reason", reason),
		)
		return
	}

	alert := Alert{
		Message:    FormatMessage(sensorType, metric, info.Room),
		DeviceID:   deviceID,
		SensorType: sensorType,
		Metric:     metric,
		Value:      &value,
		Threshold:  &threshold,
		Room:       info.Room.Label(),
		Timestamp:  timeparser.FormatISO(ts),
	}

	if err := e.sink.Send(ctx, alert); err != nil {
		e.logger.Error("failed to dispatch alert",
			zap.Error(err),
			zap.String("device_id", deviceID),
			zap.String("alert", alert.Message),
		)
	} else {
		e.logger.Warn("threshold alert sent",
			zap.String("device_id", deviceID),
			zap.String("sensor_type", sensorType),
			zap.String("metric", metric),
			zap.Float64("value", value),
			zap.Float64("threshold", threshold),
		)
	}

	e.cooldown.Record(key)
}

// ProcessBatch checks every numeric reading of a batch. Boolean readings
// are never alerted on.
func (e *Engine) ProcessBatch(ctx context.Context, deviceID, sensorType string, readings []telemetry.Reading) {
	for _, r := range telemetry.NumericReadings(readings) {
		e.CheckAndAlert(ctx, deviceID, sensorType, r.Metric, r.Value, r.Timestamp)
	}
}

// TestAlert sends message straight to the sink, bypassing thresholds and
// cooldown. Dispatch errors are returned to the caller.
func (e *Engine) TestAlert(ctx context.Context, deviceID, message string) error {
	if message == "" {
		message = DefaultTestMessage
	}

	alert := Alert{
		Message:   message,
		DeviceID:  deviceID,
		Timestamp: timeparser.FormatISO(e.now()),
	}
	if err := e.sink.Send(ctx, alert); err != nil {
		e.logger.Error("test alert failed", zap.Error(err), zap.String("device_id", deviceID))
		return err
	}

	e.logger.Info("test alert sent", zap.String("device_id", deviceID))
	return nil
}

// RunSweeper evicts expired cooldown entries every interval until ctx is done
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := e.cooldown.Sweep(); removed > 0 {
				e.logger.Debug("cooldown entries evicted",
					zap.Int("removed", removed),
					zap.Int("remaining", e.cooldown.Len()),
				)
			}
		}
	}
}
