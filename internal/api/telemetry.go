package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/internal/maintenance"
	"github.com/septivank/iot-telemetry-hub/internal/notify"
	"github.com/septivank/iot-telemetry-hub/internal/repository"
	"github.com/septivank/iot-telemetry-hub/internal/service"
	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
	"github.com/septivank/iot-telemetry-hub/tools/timeparser"
	"go.uber.org/zap"
)

// TelemetryReader is the read side used by the telemetry routes.
type TelemetryReader interface {
	Latest(ctx context.Context, deviceID, sensorType string) (*telemetry.Record, error)
	History(ctx context.Context, f repository.HistoryFilter) (*service.HistoryPage, error)
	Stats(ctx context.Context, q service.StatsQuery) (*telemetry.Stats, error)
	Summary(ctx context.Context, q service.SummaryQuery) ([]telemetry.Bucket, error)
	Metrics(ctx context.Context, deviceID, sensorType string) ([]telemetry.SensorMetrics, error)
}

// AlertTester fires a test alert.
type AlertTester interface {
	TestAlert(ctx context.Context, deviceID, message string) error
}

// LiveChannel is a websocket notification channel.
type LiveChannel interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Stats() notify.ConnectionStats
	SubscriberCount(id string) int
}

// TelemetryHandler serves the telemetry read API.
type TelemetryHandler struct {
	reader TelemetryReader
	alerts AlertTester
	live   LiveChannel
	auth   *Authenticator
	logger *zap.Logger
}

// NewTelemetryHandler creates the telemetry routes
func NewTelemetryHandler(reader TelemetryReader, alerts AlertTester, live LiveChannel, auth *Authenticator, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{reader: reader, alerts: alerts, live: live, auth: auth, logger: logger}
}

// Mount registers the routes
func (h *TelemetryHandler) Mount(r chi.Router) {
	r.Get("/ws", h.live.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Route("/telemetry", func(r chi.Router) {
			r.Get("/device/{id}", h.history)
			r.Get("/latest/{id}", h.latest)
			r.Get("/stats/{id}/{metric}", h.stats)
			r.Get("/summary/{id}/{metric}", h.summary)
			r.Get("/metrics/{id}", h.metrics)
			r.With(RequireRole(maintenance.RoleAdmin)).Post("/alerts/test", h.testAlert)
		})

		r.Get("/api/telemetry/connections/stats", h.connectionStats)
		r.Get("/api/telemetry/device/{id}/subscribers", h.subscribers)
	})
}

func (h *TelemetryHandler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := parseRange(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	page, err := queryInt(q.Get("page"), "page")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	result, err := h.reader.History(r.Context(), repository.HistoryFilter{
		DeviceID:   chi.URLParam(r, "id"),
		From:       from,
		To:         to,
		SensorType: q.Get("sensorType"),
		Metric:     q.Get("metric"),
		Limit:      limit,
		Page:       page,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondOKWithMeta(w, result.Records, map[string]int{
		"limit": result.Limit,
		"page":  result.Page,
		"count": len(result.Records),
	})
}

func (h *TelemetryHandler) latest(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	rec, err := h.reader.Latest(r.Context(), deviceID, r.URL.Query().Get("sensorType"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if rec == nil {
		respondMessage(w, http.StatusNotFound, "no telemetry found for device "+deviceID)
		return
	}
	respondOK(w, rec)
}

func (h *TelemetryHandler) statsQuery(r *http.Request) (service.StatsQuery, error) {
	from, to, err := parseRange(r)
	if err != nil {
		return service.StatsQuery{}, err
	}
	return service.StatsQuery{
		DeviceID:   chi.URLParam(r, "id"),
		Metric:     chi.URLParam(r, "metric"),
		SensorType: r.URL.Query().Get("sensorType"),
		From:       from,
		To:         to,
	}, nil
}

func (h *TelemetryHandler) stats(w http.ResponseWriter, r *http.Request) {
	q, err := h.statsQuery(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	stats, err := h.reader.Stats(r.Context(), q)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if stats == nil {
		respondMessage(w, http.StatusNotFound, "no data for metric "+q.Metric)
		return
	}
	respondOK(w, stats)
}

func (h *TelemetryHandler) summary(w http.ResponseWriter, r *http.Request) {
	q, err := h.statsQuery(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	interval := r.URL.Query().Get("interval")
	buckets, err := h.reader.Summary(r.Context(), service.SummaryQuery{
		StatsQuery: q,
		Interval:   telemetry.Interval(interval),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if interval == "" {
		interval = string(telemetry.IntervalHour)
	}
	respondOKWithMeta(w, buckets, map[string]any{
		"metric":   q.Metric,
		"interval": interval,
		"buckets":  len(buckets),
	})
}

func (h *TelemetryHandler) metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.reader.Metrics(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("sensorType"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, metrics)
}

type testAlertRequest struct {
	DeviceID string `json:"deviceId"`
	Message  string `json:"message"`
}

func (h *TelemetryHandler) testAlert(w http.ResponseWriter, r *http.Request) {
	var req testAlertRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		respondError(w, r, h.logger, errs.Validation("deviceId is required"))
		return
	}

	if err := h.alerts.TestAlert(r.Context(), req.DeviceID, req.Message); err != nil {
		h.logger.Warn("test alert failed", zap.Error(err), zap.String("device_id", req.DeviceID))
		respondMessage(w, http.StatusBadGateway, "failed to send test alert: "+err.Error())
		return
	}
	respondOK(w, map[string]string{"deviceId": req.DeviceID, "status": "sent"})
}

func (h *TelemetryHandler) connectionStats(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, h.live.Stats())
}

func (h *TelemetryHandler) subscribers(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	respondOK(w, map[string]any{
		"deviceId":    deviceID,
		"subscribers": h.live.SubscriberCount(deviceID),
	})
}

func parseRange(r *http.Request) (from, to *time.Time, err error) {
	q := r.URL.Query()
	if from, err = timeparser.ParseOptional(q.Get("from")); err != nil {
		return nil, nil, errs.Validation("invalid from: %v", err)
	}
	if to, err = timeparser.ParseOptional(q.Get("to")); err != nil {
		return nil, nil, errs.Validation("invalid to: %v", err)
	}
	return from, to, nil
}

func queryInt(value, name string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, errs.Validation("%s must be a positive integer", name)
	}
	return n, nil
}
