package service

import (
	"context"
	"fmt"
	"time"

	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/internal/repository"
	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
	"go.uber.org/zap"
)

const maxHistoryLimit = 10000

// HistoryPage is one page of records with its paging parameters.
type HistoryPage struct {
	Records []telemetry.Record `json:"records"`
	Limit   int                `json:"limit"`
	Page    int                `json:"page"`
}

// StatsQuery selects the readings aggregated by Stats.
type StatsQuery struct {
	DeviceID   string
	Metric     string
	SensorType string
	From       *time.Time
	To         *time.Time
}

// SummaryQuery selects the readings bucketed by Summary.
type SummaryQuery struct {
	StatsQuery
	Interval telemetry.Interval
}

// QueryService is the read side of the telemetry store
type QueryService struct {
	repo   TelemetryStore
	logger *zap.Logger
}

// NewQueryService creates a new query service
func NewQueryService(repo TelemetryStore, logger *zap.Logger) *QueryService {
	return &QueryService{repo: repo, logger: logger}
}

// Latest returns the newest record of a device or nil
func (s *QueryService) Latest(ctx context.Context, deviceID, sensorType string) (*telemetry.Record, error) {
	if deviceID == "" {
		return nil, errs.Validation("device id is required")
	}
	rec, err := s.repo.Latest(ctx, deviceID, sensorType)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest telemetry: %w", err)
	}
	return rec, nil
}

// History returns one page of records, newest first
func (s *QueryService) History(ctx context.Context, f repository.HistoryFilter) (*HistoryPage, error) {
	if f.DeviceID == "" {
		return nil, errs.Validation("device id is required")
	}
	if err := checkRange(f.From, f.To); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = 1000
	}
	if f.Limit > maxHistoryLimit {
		return nil, errs.Validation("limit must not exceed %d", maxHistoryLimit)
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	records, err := s.repo.History(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to load telemetry history: %w", err)
	}

	return &HistoryPage{Records: records, Limit: f.Limit, Page: f.Page}, nil
}

// Stats aggregates one metric. It returns nil when nothing matches.
func (s *QueryService) Stats(ctx context.Context, q StatsQuery) (*telemetry.Stats, error) {
	points, err := s.points(ctx, q)
	if err != nil {
		return nil, err
	}
	return telemetry.ComputeStats(points), nil
}

// Summary buckets one metric by interval, oldest bucket first
func (s *QueryService) Summary(ctx context.Context, q SummaryQuery) ([]telemetry.Bucket, error) {
	interval, err := telemetry.ParseInterval(string(q.Interval))
	if err != nil {
		return nil, errs.Validation("%v", err)
	}

	points, err := s.points(ctx, q.StatsQuery)
	if err != nil {
		return nil, err
	}
	return telemetry.Summarize(points, interval), nil
}

// Metrics lists the metrics a device has reported, per sensor type
func (s *QueryService) Metrics(ctx context.Context, deviceID, sensorType string) ([]telemetry.SensorMetrics, error) {
	if deviceID == "" {
		return nil, errs.Validation("device id is required")
	}
	metrics, err := s.repo.AvailableMetrics(ctx, deviceID, sensorType)
	if err != nil {
		return nil, fmt.Errorf("failed to load available metrics: %w", err)
	}
	return metrics, nil
}

func (s *QueryService) points(ctx context.Context, q StatsQuery) ([]telemetry.MetricPoint, error) {
	if q.DeviceID == "" {
		return nil, errs.Validation("device id is required")
	}
	if q.Metric == "" {
		return nil, errs.Validation("metric is required")
	}
	if err := checkRange(q.From, q.To); err != nil {
		return nil, err
	}

	points, err := s.repo.MetricPoints(ctx, repository.PointFilter{
		DeviceID:   q.DeviceID,
		Metric:     q.Metric,
		SensorType: q.SensorType,
		From:       q.From,
		To:         q.To,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load metric points: %w", err)
	}
	return points, nil
}

func checkRange(from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return errs.Validation("from must not be after to")
	}
	return nil
}
