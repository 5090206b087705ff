package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
	"go.uber.org/zap"
)

// Handler applies device update events from the fanout exchange to the store.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

// NewHandler creates a handler
func NewHandler(store *Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Handle processes one message body. Malformed or foreign events are logged
// and acknowledged; only store failures are returned.
func (h *Handler) Handle(ctx context.Context, body []byte) error {
	var event telemetry.DeviceUpdateEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("dropping malformed device update", zap.Error(err))
		return nil
	}
	if event.Type != telemetry.EventTypeSensorReading {
		h.logger.Debug("ignoring device update", zap.String("type", event.Type))
		return nil
	}
	if event.DeviceID == "" || event.SensorType == "" {
		h.logger.Warn("dropping device update without device or sensor type")
		return nil
	}

	entry := Entry{Readings: event.Readings, UpdatedAt: event.EmittedAt}
	if err := h.store.Put(ctx, event.DeviceID, event.SensorType, entry); err != nil {
		return fmt.Errorf("failed to apply device update: %w", err)
	}

	h.logger.Debug("latest state updated",
		zap.String("device_id", event.DeviceID),
		zap.String("sensor_type", event.SensorType),
		zap.Int("metrics", len(event.Readings)),
	)
	return nil
}
