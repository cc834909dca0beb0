// Package units provides shared constants and validation for time units
package units

// Unit constants
const (
	NS = "ns"
	US = "us"
	MS = "ms"
	S  = "s"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{NS, US, MS, S}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "ns, us, ms, s"
}

// ConvertNanos converts a duration from nanoseconds to the target units.
// Capture files and the database store durations in nanoseconds.
func ConvertNanos(nanos float64, targetUnits string) float64 {
	switch targetUnits {
	case US:
		return nanos / 1e3
	case MS:
		return nanos / 1e6
	case S:
		return nanos / 1e9
	case NS:
		return nanos // no conversion needed
	default:
		return nanos // default to ns if unknown unit
	}
}
