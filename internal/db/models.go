package db

import (
	"time"

	"github.com/google/uuid"
)

// TelemetryRow is a telemetry_records row. Readings holds the JSONB array
// exactly as received.
type TelemetryRow struct {
	ID         uuid.UUID
	DeviceID   string
	SensorType string
	Readings   []byte
	ReceivedAt time.Time
}

// MetricPointRow is one reading unwound from a telemetry_records row.
type MetricPointRow struct {
	SensorType string
	Value      []byte
	Timestamp  time.Time
	ReceivedAt time.Time
}
