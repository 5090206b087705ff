package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
)

const keyPrefix = "device:latest:"

// Entry is the cached latest state of one sensor type.
type Entry struct {
	Readings  telemetry.LatestSnapshot `json:"readings"`
	UpdatedAt string                   `json:"updatedAt"`
}

// Store keeps one Redis hash per device mapping sensor type to its latest
// readings.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewStore creates a store. A positive ttl expires devices that stop
// reporting.
func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Key returns the hash key of a device
func Key(deviceID string) string {
	return keyPrefix + deviceID
}

// Put replaces the latest readings of one sensor type
func (s *Store) Put(ctx context.Context, deviceID, sensorType string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode latest entry: %w", err)
	}

	key := Key(deviceID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, sensorType, payload)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store latest state of %s: %w", deviceID, err)
	}
	return nil
}

// Latest returns every cached sensor type of a device
func (s *Store) Latest(ctx context.Context, deviceID string) (map[string]Entry, error) {
	fields, err := s.client.HGetAll(ctx, Key(deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read latest state of %s: %w", deviceID, err)
	}
	if len(fields) == 0 {
		return nil, errs.NotFound("no latest state for device %s", deviceID)
	}

	out := make(map[string]Entry, len(fields))
	for sensorType, raw := range fields {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode latest state of %s/%s: %w", deviceID, sensorType, err)
		}
		out[sensorType] = entry
	}
	return out, nil
}
