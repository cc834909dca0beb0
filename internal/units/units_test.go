package units

import (
	"math"
	"testing"
)

func TestConvertNanos(t *testing.T) {
	tests := []struct {
		name     string
		nanos    float64
		units    string
		expected float64
	}{
		{"1500 ns to us", 1500.0, US, 1.5},
		{"1500000 ns to ms", 1500000.0, MS, 1.5},
		{"2e9 ns to s", 2e9, S, 2.0},
		{"100 ns to ns", 100.0, NS, 100.0},
		{"unknown units default to ns", 100.0, "unknown", 100.0},
		{"0 ns to us", 0.0, US, 0.0},
		{"typical burst gap 250 ns to us", 250.0, US, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertNanos(tt.nanos, tt.units)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ConvertNanos(%f, %s) = %f, want %f", tt.nanos, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		if !IsValid(u) {
			t.Errorf("IsValid(%q) = false, want true", u)
		}
	}
	for _, u := range []string{"", "NS", "sec", "minutes"} {
		if IsValid(u) {
			t.Errorf("IsValid(%q) = true, want false", u)
		}
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "ns, us, ms, s" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}
