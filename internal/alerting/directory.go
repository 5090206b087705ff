package alerting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"go.uber.org/zap"
)

// Directory resolves a device to the room it is installed in
type Directory interface {
	Lookup(ctx context.Context, deviceID string) (*DeviceInfo, error)
}

type deviceResponse struct {
	Success bool        `json:"success"`
	Data    *DeviceInfo `json:"data"`
	Error   string      `json:"error"`
}

// HTTPDirectory looks devices up in the devices service
type HTTPDirectory struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPDirectory creates a directory client for the devices service
func NewHTTPDirectory(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPDirectory {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &HTTPDirectory{
		httpClient: client,
		logger:     logger,
	}
}

// Lookup fetches GET /api/devices/{id}
func (d *HTTPDirectory) Lookup(ctx context.Context, deviceID string) (*DeviceInfo, error) {
	var response deviceResponse
	resp, err := d.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", deviceID).
		SetResult(&response).
		SetError(&response).
		Get("/api/devices/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to call devices service: %w", err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, errs.NotFound("device %s", deviceID)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("devices service returned status %d: %s", resp.StatusCode(), response.Error)
	}
	if !response.Success || response.Data == nil {
		return nil, fmt.Errorf("devices service returned no data for device %s", deviceID)
	}

	d.logger.Debug("device resolved",
		zap.String("device_id", deviceID),
		zap.String("room", response.Data.Room.Label()),
	)
	return response.Data, nil
}
