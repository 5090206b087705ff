package timeparser

import (
	"fmt"
	"strings"
	"time"
)

// layouts accepted for device and query timestamps, tried in order.
// Layouts without a zone are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
}

// ParseTimestamp parses an ISO-8601 style timestamp and returns it in UTC
func ParseTimestamp(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': empty value", value)
	}

	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", value, lastErr)
}

// ParseOptional parses value when it is non-empty. An empty value yields nil.
func ParseOptional(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FormatISO formats t the way timestamps travel on the wire (UTC, millisecond precision)
func FormatISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
