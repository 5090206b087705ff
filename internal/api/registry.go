package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/septivank/iot-telemetry-hub/internal/registry"
	"go.uber.org/zap"
)

// LatestStore reads cached device state.
type LatestStore interface {
	Latest(ctx context.Context, deviceID string) (map[string]registry.Entry, error)
}

// RegistryHandler serves cached latest readings.
type RegistryHandler struct {
	store  LatestStore
	logger *zap.Logger
}

// NewRegistryHandler creates the registry routes
func NewRegistryHandler(store LatestStore, logger *zap.Logger) *RegistryHandler {
	return &RegistryHandler{store: store, logger: logger}
}

// Mount registers the routes
func (h *RegistryHandler) Mount(r chi.Router) {
	r.Get("/api/devices/{id}/latest", h.latest)
}

func (h *RegistryHandler) latest(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	latest, err := h.store.Latest(r.Context(), deviceID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, map[string]any{
		"deviceId":      deviceID,
		"latestReading": latest,
	})
}
