package telemetry

import (
	"time"

	"github.com/google/uuid"
	"github.com/septivank/iot-telemetry-hub/tools/timeparser"
)

// EventTypeSensorReading tags the latest-state update event.
const EventTypeSensorReading = "SENSOR_READING"

// Reading is one measured value with a parsed timestamp.
type Reading struct {
	Metric    string    `json:"metric"`
	Value     Value     `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is one ingested message as stored in the time-series store.
type Record struct {
	ID         uuid.UUID `json:"id"`
	DeviceID   string    `json:"deviceId"`
	SensorType string    `json:"sensorType"`
	Readings   []Reading `json:"readings"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// LatestValue is the most recent value of one metric.
type LatestValue struct {
	Value     Value  `json:"value"`
	Timestamp string `json:"timestamp"`
}

// LatestSnapshot maps metric name to its latest value.
type LatestSnapshot map[string]LatestValue

// BuildSnapshot derives the latest value per metric from readings. When a
// metric repeats, the later reading in the slice wins.
func BuildSnapshot(readings []Reading) LatestSnapshot {
	snapshot := make(LatestSnapshot, len(readings))
	for _, r := range readings {
		snapshot[r.Metric] = LatestValue{
			Value:     r.Value,
			Timestamp: timeparser.FormatISO(r.Timestamp),
		}
	}
	return snapshot
}

// DeviceUpdateEvent is emitted on the fanout exchange after each ingestion.
type DeviceUpdateEvent struct {
	Type       string         `json:"type"`
	DeviceID   string         `json:"deviceId"`
	SensorType string         `json:"sensorType"`
	Readings   LatestSnapshot `json:"readings"`
	EmittedAt  string         `json:"timestamp"`
}

// NewDeviceUpdateEvent builds the update event for a freshly ingested batch
func NewDeviceUpdateEvent(deviceID, sensorType string, readings []Reading, now time.Time) DeviceUpdateEvent {
	return DeviceUpdateEvent{
		Type:       EventTypeSensorReading,
		DeviceID:   deviceID,
		SensorType: sensorType,
		Readings:   BuildSnapshot(readings),
		EmittedAt:  timeparser.FormatISO(now),
	}
}

// NumericReading is a reading whose value is known to be a number.
type NumericReading struct {
	Metric    string
	Value     float64
	Timestamp time.Time
}

// NumericReadings keeps only the numeric readings, in order
func NumericReadings(readings []Reading) []NumericReading {
	out := make([]NumericReading, 0, len(readings))
	for _, r := range readings {
		if f, ok := r.Value.Float(); ok {
			out = append(out, NumericReading{Metric: r.Metric, Value: f, Timestamp: r.Timestamp})
		}
	}
	return out
}
