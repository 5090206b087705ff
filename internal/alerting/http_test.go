package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookSink_Send(t *testing.T) {
	var received Alert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second, zap.NewNop())
	err := sink.Send(context.Background(), Alert{Message: "Danger! High gas level detected in Lab A", DeviceID: "dev-1"})
	require.NoError(t, err)
	assert.Equal(t, "Danger! High gas level detected in Lab A", received.Message)
	assert.Equal(t, "dev-1", received.DeviceID)
}

func TestWebhookSink_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second, zap.NewNop())
	err := sink.Send(context.Background(), Alert{Message: "x"})
	assert.ErrorContains(t, err, "502")
}

func TestWebhookSink_NotConfigured(t *testing.T) {
	sink := NewWebhookSink("", time.Second, zap.NewNop())
	assert.Error(t, sink.Send(context.Background(), Alert{Message: "x"}))
}

func TestHTTPDirectory_Lookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/devices/dev-1":
			_, _ = w.Write([]byte(`{"success":true,"data":{"_id":"dev-1","roomId":{"_id":"r1","number":"101","name":"Lab A","floor":1}}}`))
		case "/api/devices/dev-2":
			_, _ = w.Write([]byte(`{"success":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":"device not found"}`))
		}
	}))
	defer server.Close()

	dir := NewHTTPDirectory(server.URL, time.Second, zap.NewNop())

	info, err := dir.Lookup(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "Lab A", info.Room.Label())
	assert.Equal(t, 1, info.Room.Floor)

	_, err = dir.Lookup(context.Background(), "dev-2")
	assert.Error(t, err)

	_, err = dir.Lookup(context.Background(), "missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}
