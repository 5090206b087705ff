package telemetry

import (
	"fmt"
	"sort"
	"time"
)

// MetricPoint is one unwound reading of a single metric, together with the
// time its enclosing record was stored.
type MetricPoint struct {
	SensorType string    `json:"sensorType"`
	Value      Value     `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Stats is the scalar aggregate over a metric. Avg, Min and Max are nil
// when no numeric value matched.
type Stats struct {
	Avg             *float64   `json:"avg"`
	Min             *float64   `json:"min"`
	Max             *float64   `json:"max"`
	Count           int        `json:"count"`
	Latest          *Value     `json:"latest"`
	LatestTimestamp *time.Time `json:"latestTimestamp"`
}

// Interval is a summary bucket width.
type Interval string

const (
	IntervalHour Interval = "1h"
	IntervalDay  Interval = "1d"
	IntervalWeek Interval = "1w"
)

// ParseInterval validates an interval string. Empty means 1h.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case "":
		return IntervalHour, nil
	case IntervalHour, IntervalDay, IntervalWeek:
		return Interval(s), nil
	default:
		return "", fmt.Errorf("unsupported interval %q", s)
	}
}

// BucketKey returns the bucket label of t for the interval
func (i Interval) BucketKey(t time.Time) string {
	t = t.UTC()
	switch i {
	case IntervalDay:
		return t.Format("2006-01-02")
	case IntervalWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	default:
		return t.Format("2006-01-02 15:00")
	}
}

// Bucket is one interval of a summary.
type Bucket struct {
	Key            string    `json:"bucket"`
	Avg            *float64  `json:"avg"`
	Min            *float64  `json:"min"`
	Max            *float64  `json:"max"`
	Count          int       `json:"count"`
	FirstTimestamp time.Time `json:"firstTimestamp"`
	LastTimestamp  time.Time `json:"lastTimestamp"`
}

type accumulator struct {
	sum     float64
	min     float64
	max     float64
	numeric int
	count   int
}

func (a *accumulator) add(v Value) {
	a.count++
	f, ok := v.Float()
	if !ok {
		return
	}
	if a.numeric == 0 || f < a.min {
		a.min = f
	}
	if a.numeric == 0 || f > a.max {
		a.max = f
	}
	a.sum += f
	a.numeric++
}

func (a *accumulator) results() (avg, min, max *float64) {
	if a.numeric == 0 {
		return nil, nil, nil
	}
	mean := a.sum / float64(a.numeric)
	lo, hi := a.min, a.max
	return &mean, &lo, &hi
}

// ComputeStats aggregates points ordered by storage time, oldest first.
// It returns nil when points is empty.
func ComputeStats(points []MetricPoint) *Stats {
	if len(points) == 0 {
		return nil
	}

	var acc accumulator
	for _, p := range points {
		acc.add(p.Value)
	}

	last := points[len(points)-1]
	latest := last.Value
	latestTS := last.Timestamp

	stats := &Stats{
		Count:           acc.count,
		Latest:          &latest,
		LatestTimestamp: &latestTS,
	}
	stats.Avg, stats.Min, stats.Max = acc.results()
	return stats
}

// Summarize groups points into interval buckets keyed by storage time and
// returns them in ascending order. Only buckets with at least one point appear.
func Summarize(points []MetricPoint, interval Interval) []Bucket {
	type group struct {
		acc   accumulator
		first time.Time
		last  time.Time
	}

	groups := make(map[string]*group)
	for _, p := range points {
		key := interval.BucketKey(p.ReceivedAt)
		g, ok := groups[key]
		if !ok {
			g = &group{first: p.ReceivedAt, last: p.ReceivedAt}
			groups[key] = g
		}
		g.acc.add(p.Value)
		if p.ReceivedAt.Before(g.first) {
			g.first = p.ReceivedAt
		}
		if p.ReceivedAt.After(g.last) {
			g.last = p.ReceivedAt
		}
	}

	buckets := make([]Bucket, 0, len(groups))
	for key, g := range groups {
		b := Bucket{
			Key:            key,
			Count:          g.acc.count,
			FirstTimestamp: g.first,
			LastTimestamp:  g.last,
		}
		b.Avg, b.Min, b.Max = g.acc.results()
		buckets = append(buckets, b)
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].FirstTimestamp.Before(buckets[j].FirstTimestamp)
	})
	return buckets
}

// MetricInfo describes one metric a device has reported.
type MetricInfo struct {
	Metric        string    `json:"metric"`
	LastValue     Value     `json:"lastValue"`
	LastTimestamp time.Time `json:"lastTimestamp"`
	Count         int       `json:"count"`
}

// SensorMetrics lists the metrics reported under one sensor type.
type SensorMetrics struct {
	SensorType string       `json:"sensorType"`
	Metrics    []MetricInfo `json:"metrics"`
}
