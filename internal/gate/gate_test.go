package gate

import (
	"testing"
	"time"
)

func TestWindowOpen(t *testing.T) {
	tests := []struct {
		name   string
		window Window
		at     time.Time
		want   bool
	}{
		{"default morning", Default(), time.Date(2026, 10, 14, 6, 0, 0, 0, WIB), true},
		{"default before open", Default(), time.Date(2026, 10, 14, 5, 59, 0, 0, WIB), false},
		{"default last hour", Default(), time.Date(2026, 10, 14, 21, 59, 0, 0, WIB), true},
		{"default closed at end", Default(), time.Date(2026, 10, 14, 22, 0, 0, 0, WIB), false},
		// 23:30 UTC is 06:30 WIB the next day.
		{"utc input converted", Default(), time.Date(2026, 10, 13, 23, 30, 0, 0, time.UTC), true},
		{"utc afternoon is wib night", Default(), time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC), false},
		{"wrap late", Window{StartHour: 22, EndHour: 6}, time.Date(2026, 10, 14, 23, 0, 0, 0, WIB), true},
		{"wrap early", Window{StartHour: 22, EndHour: 6}, time.Date(2026, 10, 14, 3, 0, 0, 0, WIB), true},
		{"wrap closed", Window{StartHour: 22, EndHour: 6}, time.Date(2026, 10, 14, 12, 0, 0, 0, WIB), false},
		{"always open", Window{StartHour: 0, EndHour: 24}, time.Date(2026, 10, 14, 3, 0, 0, 0, WIB), true},
		{"equal hours", Window{StartHour: 8, EndHour: 8}, time.Date(2026, 10, 14, 20, 0, 0, 0, WIB), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Open(tt.at); got != tt.want {
				t.Errorf("%v.Open(%v) = %v, want %v", tt.window, tt.at, got, tt.want)
			}
		})
	}
}

func TestWindowString(t *testing.T) {
	if got := Default().String(); got != "06:00-22:00 WIB" {
		t.Errorf("String() = %q", got)
	}
}
