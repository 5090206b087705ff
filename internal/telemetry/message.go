package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/septivank/iot-telemetry-hub/internal/errs"
)

// RawReading is one reading as received, before its timestamp is parsed.
type RawReading struct {
	Metric    string `json:"metric"`
	Value     Value  `json:"value"`
	Timestamp string `json:"timestamp"`
}

// Single is the one-reading wire shape.
type Single struct {
	SensorType string `json:"sensorType"`
	Metric     string `json:"metric"`
	Value      Value  `json:"value"`
	Timestamp  string `json:"timestamp"`
}

// Batch is the multi-reading wire shape.
type Batch struct {
	SensorType string       `json:"sensorType"`
	Readings   []RawReading `json:"readings"`
}

// Message is an inbound sensor message: exactly one of a Single or a Batch.
type Message struct {
	single *Single
	batch  *Batch
}

// NewSingleMessage wraps a single reading
func NewSingleMessage(s Single) Message {
	return Message{single: &s}
}

// NewBatchMessage wraps a batch
func NewBatchMessage(b Batch) Message {
	return Message{batch: &b}
}

// IsBatch reports whether the message arrived in the batch shape
func (m Message) IsBatch() bool { return m.batch != nil }

// SensorType returns the sensor type tag of the message
func (m Message) SensorType() string {
	switch {
	case m.batch != nil:
		return m.batch.SensorType
	case m.single != nil:
		return m.single.SensorType
	default:
		return ""
	}
}

// Normalize returns the message as a batch. A single reading becomes a
// one-element batch.
func (m Message) Normalize() Batch {
	switch {
	case m.batch != nil:
		readings := make([]RawReading, len(m.batch.Readings))
		copy(readings, m.batch.Readings)
		return Batch{SensorType: m.batch.SensorType, Readings: readings}
	case m.single != nil:
		return Batch{
			SensorType: m.single.SensorType,
			Readings: []RawReading{{
				Metric:    m.single.Metric,
				Value:     m.single.Value,
				Timestamp: m.single.Timestamp,
			}},
		}
	default:
		return Batch{}
	}
}

type wireMessage struct {
	SensorType string        `json:"sensorType"`
	Metric     *string       `json:"metric"`
	Value      *Value        `json:"value"`
	Timestamp  *string       `json:"timestamp"`
	Readings   *[]RawReading `json:"readings"`
}

// DecodeMessage decodes a JSON payload into a Message. A payload carrying a
// "readings" array is a batch; anything else must be a complete single reading.
func DecodeMessage(payload []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(payload, &w); err != nil {
		return Message{}, fmt.Errorf("%w: invalid telemetry payload: %v", errs.ErrValidation, err)
	}

	if w.SensorType == "" {
		return Message{}, errs.Validation("missing sensorType")
	}

	if w.Readings != nil {
		return NewBatchMessage(Batch{SensorType: w.SensorType, Readings: *w.Readings}), nil
	}

	if w.Metric == nil || *w.Metric == "" {
		return Message{}, errs.Validation("single reading requires metric")
	}
	if w.Value == nil {
		return Message{}, errs.Validation("single reading requires value")
	}
	if w.Timestamp == nil {
		return Message{}, errs.Validation("single reading requires timestamp")
	}

	return NewSingleMessage(Single{
		SensorType: w.SensorType,
		Metric:     *w.Metric,
		Value:      *w.Value,
		Timestamp:  *w.Timestamp,
	}), nil
}

// MarshalJSON encodes the message in the shape it arrived in
func (m Message) MarshalJSON() ([]byte, error) {
	switch {
	case m.batch != nil:
		return json.Marshal(m.batch)
	case m.single != nil:
		return json.Marshal(m.single)
	default:
		return nil, fmt.Errorf("empty message")
	}
}
