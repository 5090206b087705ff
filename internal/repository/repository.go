package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/septivank/iot-telemetry-hub/internal/db"
	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
)

// Querier is the subset of pgxpool.Pool the repository uses
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TelemetryRepository stores telemetry records in PostgreSQL. Readings are
// kept as a JSONB array in arrival order.
type TelemetryRepository struct {
	pool Querier
}

// NewTelemetryRepository creates a new repository
func NewTelemetryRepository(pool Querier) *TelemetryRepository {
	return &TelemetryRepository{pool: pool}
}

// HistoryFilter selects records for a device. Zero values mean "no filter".
type HistoryFilter struct {
	DeviceID   string
	From       *time.Time
	To         *time.Time
	SensorType string
	Metric     string
	Limit      int
	Page       int
}

// PointFilter selects unwound readings of one metric.
type PointFilter struct {
	DeviceID   string
	Metric     string
	SensorType string
	From       *time.Time
	To         *time.Time
}

// InsertRecord persists one record in a single statement
func (r *TelemetryRepository) InsertRecord(ctx context.Context, rec telemetry.Record) error {
	readings, err := json.Marshal(rec.Readings)
	if err != nil {
		return fmt.Errorf("failed to encode readings: %w", err)
	}

	query := `
		INSERT INTO telemetry_records (id, device_id, sensor_type, readings, received_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.pool.Exec(ctx, query, rec.ID, rec.DeviceID, rec.SensorType, readings, rec.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry record: %w", err)
	}

	return nil
}

// Latest returns the most recently stored record of a device, optionally
// restricted to a sensor type. It returns nil when nothing matches.
func (r *TelemetryRepository) Latest(ctx context.Context, deviceID, sensorType string) (*telemetry.Record, error) {
	w := newWhere("device_id = $1", deviceID)
	if sensorType != "" {
		w.and("sensor_type = $%d", sensorType)
	}

	query := `
		SELECT id, device_id, sensor_type, readings, received_at
		FROM telemetry_records
		WHERE ` + w.sql() + `
		ORDER BY received_at DESC
		LIMIT 1
	`

	var row db.TelemetryRow
	err := r.pool.QueryRow(ctx, query, w.args...).Scan(
		&row.ID,
		&row.DeviceID,
		&row.SensorType,
		&row.Readings,
		&row.ReceivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest record: %w", err)
	}

	return toRecord(row)
}

// History returns records newest first. With a metric filter, each record
// keeps only the readings of that metric and records without one are skipped.
func (r *TelemetryRepository) History(ctx context.Context, f HistoryFilter) ([]telemetry.Record, error) {
	query, args := historyQuery(f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry history: %w", err)
	}
	defer rows.Close()

	records := make([]telemetry.Record, 0)
	for rows.Next() {
		var row db.TelemetryRow
		if err := rows.Scan(&row.ID, &row.DeviceID, &row.SensorType, &row.Readings, &row.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry record: %w", err)
		}
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// MetricPoints unwinds matching records into per-reading points ordered by
// storage time, oldest first, and by position within a record.
func (r *TelemetryRepository) MetricPoints(ctx context.Context, f PointFilter) ([]telemetry.MetricPoint, error) {
	query, args := pointsQuery(f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric points: %w", err)
	}
	defer rows.Close()

	points := make([]telemetry.MetricPoint, 0)
	for rows.Next() {
		var row db.MetricPointRow
		if err := rows.Scan(&row.SensorType, &row.Value, &row.Timestamp, &row.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric point: %w", err)
		}

		var value telemetry.Value
		if err := json.Unmarshal(row.Value, &value); err != nil {
			return nil, fmt.Errorf("failed to decode stored value: %w", err)
		}

		points = append(points, telemetry.MetricPoint{
			SensorType: row.SensorType,
			Value:      value,
			Timestamp:  row.Timestamp.UTC(),
			ReceivedAt: row.ReceivedAt.UTC(),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return points, nil
}

// AvailableMetrics lists, per sensor type, every metric the device has
// reported with its most recent value and reading count.
func (r *TelemetryRepository) AvailableMetrics(ctx context.Context, deviceID, sensorType string) ([]telemetry.SensorMetrics, error) {
	w := newWhere("t.device_id = $1", deviceID)
	if sensorType != "" {
		w.and("t.sensor_type = $%d", sensorType)
	}

	query := `
		SELECT sensor_type, metric, last_value, last_ts, total
		FROM (
			SELECT t.sensor_type,
			       r.value->>'metric' AS metric,
			       r.value->'value' AS last_value,
			       (r.value->>'timestamp')::timestamptz AS last_ts,
			       COUNT(*) OVER (PARTITION BY t.sensor_type, r.value->>'metric') AS total,
			       ROW_NUMBER() OVER (
			           PARTITION BY t.sensor_type, r.value->>'metric'
			           ORDER BY t.received_at DESC, r.ord DESC
			       ) AS rn
			FROM telemetry_records t
			CROSS JOIN LATERAL jsonb_array_elements(t.readings) WITH ORDINALITY AS r(value, ord)
			WHERE ` + w.sql() + `
		) s
		WHERE rn = 1
		ORDER BY sensor_type, metric
	`

	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query available metrics: %w", err)
	}
	defer rows.Close()

	result := make([]telemetry.SensorMetrics, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			st, metric string
			rawValue   []byte
			lastTS     time.Time
			total      int64
		)
		if err := rows.Scan(&st, &metric, &rawValue, &lastTS, &total); err != nil {
			return nil, fmt.Errorf("failed to scan metric info: %w", err)
		}

		var value telemetry.Value
		if err := json.Unmarshal(rawValue, &value); err != nil {
			return nil, fmt.Errorf("failed to decode stored value: %w", err)
		}

		i, ok := index[st]
		if !ok {
			i = len(result)
			index[st] = i
			result = append(result, telemetry.SensorMetrics{SensorType: st})
		}
		result[i].Metrics = append(result[i].Metrics, telemetry.MetricInfo{
			Metric:        metric,
			LastValue:     value,
			LastTimestamp: lastTS.UTC(),
			Count:         int(total),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// DeleteOlderThan removes records stored before cutoff and reports how many
// were removed.
func (r *TelemetryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM telemetry_records WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired telemetry: %w", err)
	}
	return tag.RowsAffected(), nil
}

func toRecord(row db.TelemetryRow) (*telemetry.Record, error) {
	var readings []telemetry.Reading
	if err := json.Unmarshal(row.Readings, &readings); err != nil {
		return nil, fmt.Errorf("failed to decode readings of record %s: %w", row.ID, err)
	}
	for i := range readings {
		readings[i].Timestamp = readings[i].Timestamp.UTC()
	}

	return &telemetry.Record{
		ID:         row.ID,
		DeviceID:   row.DeviceID,
		SensorType: row.SensorType,
		Readings:   readings,
		ReceivedAt: row.ReceivedAt.UTC(),
	}, nil
}
