package db

import "testing"

func TestMaskPassword(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "<empty>"},
		{"with password", "postgres://iot:secret@db:5432/telemetry", "postgres://iot:***@db:5432/telemetry"},
		{"no credentials", "postgres://db:5432/telemetry", "postgres://db:5432/telemetry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskPassword(tt.in); got != tt.want {
				t.Errorf("MaskPassword(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
