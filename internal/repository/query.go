package repository

import (
	"fmt"
	"strings"
)

const (
	defaultHistoryLimit = 1000
	defaultHistoryPage  = 1
)

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	clauses []string
	args    []any
}

func newWhere(first string, arg any) *where {
	return &where{clauses: []string{first}, args: []any{arg}}
}

// and appends a condition whose single %d verb is replaced by the next
// placeholder number
func (w *where) and(format string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
}

func (w *where) next(arg any) int {
	w.args = append(w.args, arg)
	return len(w.args)
}

func (w *where) sql() string {
	return strings.Join(w.clauses, " AND ")
}

func historyQuery(f HistoryFilter) (string, []any) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	page := f.Page
	if page <= 0 {
		page = defaultHistoryPage
	}

	w := newWhere("device_id = $1", f.DeviceID)
	if f.From != nil {
		w.and("received_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.and("received_at <= $%d", *f.To)
	}
	if f.SensorType != "" {
		w.and("sensor_type = $%d", f.SensorType)
	}

	readingsExpr := "readings"
	if f.Metric != "" {
		n := w.next(f.Metric)
		readingsExpr = fmt.Sprintf(`(
			SELECT jsonb_agg(r.value ORDER BY r.ord)
			FROM jsonb_array_elements(readings) WITH ORDINALITY AS r(value, ord)
			WHERE r.value->>'metric' = $%d
		)`, n)
		w.clauses = append(w.clauses, fmt.Sprintf(`readings @> jsonb_build_array(jsonb_build_object('metric', $%d::text))`, n))
	}

	limitN := w.next(limit)
	offsetN := w.next((page - 1) * limit)

	query := fmt.Sprintf(`
		SELECT id, device_id, sensor_type, %s AS readings, received_at
		FROM telemetry_records
		WHERE %s
		ORDER BY received_at DESC
		LIMIT $%d OFFSET $%d
	`, readingsExpr, w.sql(), limitN, offsetN)

	return query, w.args
}

func pointsQuery(f PointFilter) (string, []any) {
	w := newWhere("t.device_id = $1", f.DeviceID)
	w.and("r.value->>'metric' = $%d", f.Metric)
	if f.SensorType != "" {
		w.and("t.sensor_type = $%d", f.SensorType)
	}
	if f.From != nil {
		w.and("t.received_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.and("t.received_at <= $%d", *f.To)
	}

	query := `
		SELECT t.sensor_type,
		       r.value->'value',
		       (r.value->>'timestamp')::timestamptz,
		       t.received_at
		FROM telemetry_records t
		CROSS JOIN LATERAL jsonb_array_elements(t.readings) WITH ORDINALITY AS r(value, ord)
		WHERE ` + w.sql() + `
		ORDER BY t.received_at ASC, r.ord ASC
	`

	return query, w.args
}
