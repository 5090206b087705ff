package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind distinguishes the two scalar kinds a sensor can report.
type ValueKind uint8

const (
	KindNumber ValueKind = iota + 1
	KindBool
)

// Value is a measured value: either a number or a boolean, never both.
// The zero Value is invalid.
type Value struct {
	kind ValueKind
	num  float64
	flag bool
}

// Number returns a numeric Value
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Bool returns a boolean Value
func Bool(b bool) Value {
	return Value{kind: KindBool, flag: b}
}

// Kind reports the kind of v
func (v Value) Kind() ValueKind { return v.kind }

// IsValid reports whether v holds a number or a boolean
func (v Value) IsValid() bool { return v.kind == KindNumber || v.kind == KindBool }

// IsNumeric reports whether v holds a number
func (v Value) IsNumeric() bool { return v.kind == KindNumber }

// Float returns the numeric value and whether v is numeric
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Boolean returns the boolean value and whether v is boolean
func (v Value) Boolean() (bool, bool) {
	return v.flag, v.kind == KindBool
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	default:
		return "<invalid>"
	}
}

// MarshalJSON encodes v as a bare JSON number or boolean
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.flag)
	default:
		return nil, fmt.Errorf("cannot marshal invalid telemetry value")
	}
}

// UnmarshalJSON accepts a JSON number or boolean and rejects everything else
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*v = Bool(true)
		return nil
	case "false":
		*v = Bool(false)
		return nil
	case "null", "":
		return fmt.Errorf("telemetry value must be a number or a boolean, got null")
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("telemetry value must be a number or a boolean, got %s", data)
	}
	*v = Number(f)
	return nil
}
