package anomaly

import (
	"fmt"
)

// Detector decides whether a numeric reading breaches its configured
// threshold. Sensor types or metrics without an entry never breach.
type Detector struct {
	thresholds map[string]map[string]float64
}

// NewDetector creates a detector over a sensorType -> metric -> limit table.
// The table is copied.
func NewDetector(thresholds map[string]map[string]float64) *Detector {
	copied := make(map[string]map[string]float64, len(thresholds))
	for sensorType, metrics := range thresholds {
		m := make(map[string]float64, len(metrics))
		for metric, limit := range metrics {
			m[metric] = limit
		}
		copied[sensorType] = m
	}
	return &Detector{thresholds: copied}
}

// Threshold returns the limit for a sensor type and metric
func (d *Detector) Threshold(sensorType, metric string) (float64, bool) {
	metrics, ok := d.thresholds[sensorType]
	if !ok {
		return 0, false
	}
	limit, ok := metrics[metric]
	return limit, ok
}

// DetectAnomaly reports whether value is strictly above the threshold, with
// a reason when it is
func (d *Detector) DetectAnomaly(sensorType, metric string, value float64) (bool, string) {
	limit, ok := d.Threshold(sensorType, metric)
	if !ok {
		return false, ""
	}

	if value <= limit {
		return false, ""
	}

	return true, fmt.Sprintf("%s/%s value %.2f exceeds threshold %.2f", sensorType, metric, value, limit)
}
