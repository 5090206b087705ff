package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/septivank/iot-telemetry-hub/internal/repository"
	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
)

// memoryStore is an in-memory TelemetryStore
type memoryStore struct {
	mu         sync.Mutex
	records    []telemetry.Record
	insertErr  error
	metricsErr error
	lastFilter repository.HistoryFilter
}

func (m *memoryStore) InsertRecord(ctx context.Context, rec telemetry.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryStore) Latest(ctx context.Context, deviceID, sensorType string) (*telemetry.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *telemetry.Record
	for i := range m.records {
		r := m.records[i]
		if r.DeviceID != deviceID || (sensorType != "" && r.SensorType != sensorType) {
			continue
		}
		if latest == nil || r.ReceivedAt.After(latest.ReceivedAt) {
			latest = &r
		}
	}
	return latest, nil
}

func (m *memoryStore) History(ctx context.Context, f repository.HistoryFilter) ([]telemetry.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	out := make([]telemetry.Record, 0)
	for _, r := range m.records {
		if r.DeviceID == f.DeviceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out, nil
}

func (m *memoryStore) MetricPoints(ctx context.Context, f repository.PointFilter) ([]telemetry.MetricPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	points := make([]telemetry.MetricPoint, 0)
	for _, r := range m.records {
		if r.DeviceID != f.DeviceID || (f.SensorType != "" && r.SensorType != f.SensorType) {
			continue
		}
		for _, reading := range r.Readings {
			if reading.Metric == f.Metric {
				points = append(points, telemetry.MetricPoint{
					SensorType: r.SensorType,
					Value:      reading.Value,
					Timestamp:  reading.Timestamp,
					ReceivedAt: r.ReceivedAt,
				})
			}
		}
	}
	return points, nil
}

func (m *memoryStore) AvailableMetrics(ctx context.Context, deviceID, sensorType string) ([]telemetry.SensorMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metricsErr != nil {
		return nil, m.metricsErr
	}

	bySensor := make(map[string]map[string]*telemetry.MetricInfo)
	for _, r := range m.records {
		if r.DeviceID != deviceID || (sensorType != "" && r.SensorType != sensorType) {
			continue
		}
		metrics, ok := bySensor[r.SensorType]
		if !ok {
			metrics = make(map[string]*telemetry.MetricInfo)
			bySensor[r.SensorType] = metrics
		}
		for _, reading := range r.Readings {
			info, ok := metrics[reading.Metric]
			if !ok {
				info = &telemetry.MetricInfo{Metric: reading.Metric}
				metrics[reading.Metric] = info
			}
			info.Count++
			if !reading.Timestamp.Before(info.LastTimestamp) {
				info.LastValue = reading.Value
				info.LastTimestamp = reading.Timestamp
			}
		}
	}

	out := make([]telemetry.SensorMetrics, 0, len(bySensor))
	for st, metrics := range bySensor {
		sm := telemetry.SensorMetrics{SensorType: st}
		for _, info := range metrics {
			sm.Metrics = append(sm.Metrics, *info)
		}
		sort.Slice(sm.Metrics, func(i, j int) bool { return sm.Metrics[i].Metric < sm.Metrics[j].Metric })
		out = append(out, sm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorType < out[j].SensorType })
	return out, nil
}

func (m *memoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	var removed int64
	for _, r := range m.records {
		if r.ReceivedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return removed, nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type fakePublisher struct {
	events []any
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event any) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type fakeAlerts struct {
	batches [][]telemetry.Reading
	panics  bool
}

func (a *fakeAlerts) ProcessBatch(ctx context.Context, deviceID, sensorType string, readings []telemetry.Reading) {
	if a.panics {
		panic("alert engine bug")
	}
	a.batches = append(a.batches, readings)
}

type fakeNotifier struct {
	ids []string
}

func (n *fakeNotifier) Notify(id, eventType string, data any) int {
	n.ids = append(n.ids, id)
	return 1
}
