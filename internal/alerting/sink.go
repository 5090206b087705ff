package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Alert is the webhook payload.
type Alert struct {
	Message    string   `json:"alert"`
	DeviceID   string   `json:"deviceId"`
	SensorType string   `json:"sensorType,omitempty"`
	Metric     string   `json:"metric,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Room       string   `json:"room,omitempty"`
	Timestamp  string   `json:"timestamp"`
}

// Sink delivers alerts to operators
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// WebhookSink posts alerts to a fixed webhook URL. It does not retry.
type WebhookSink struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookSink creates a webhook sink
func NewWebhookSink(url string, timeout time.Duration, logger *zap.Logger) *WebhookSink {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &WebhookSink{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Send posts one alert; a transport error or non-2xx status is an error
func (s *WebhookSink) Send(ctx context.Context, alert Alert) error {
	if s.url == "" {
		return fmt.Errorf("alert webhook URL is not configured")
	}

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(alert).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("failed to call alert webhook: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode())
	}

	s.logger.Info("alert delivered",
		zap.String("device_id", alert.DeviceID),
		zap.String("alert", alert.Message),
	)
	return nil
}
