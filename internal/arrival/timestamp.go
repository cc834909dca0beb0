package arrival

import "time"

const nanosPerSecond = 1_000_000_000

// Timestamp is a hardware receive timestamp with nanosecond resolution,
// expressed as whole seconds plus a nanosecond remainder in [0, 1e9).
type Timestamp struct {
	Sec  int64
	Nsec int64
}

// TimestampFromTime converts a wall-clock time to a Timestamp.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Time converts the timestamp back to a wall-clock time.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Sec, t.Nsec)
}

// Sub returns the elapsed interval t - earlier as a normalized
// (seconds, nanoseconds) pair with Nsec in [0, 1e9). When the later
// nanosecond component is smaller than the earlier one, a second is
// borrowed into nanoseconds. t must not precede earlier.
func (t Timestamp) Sub(earlier Timestamp) Timestamp {
	sec := t.Sec - earlier.Sec
	nsec := t.Nsec - earlier.Nsec
	if nsec < 0 {
		nsec += nanosPerSecond
		sec--
	}
	return Timestamp{Sec: sec, Nsec: nsec}
}

// Nanos returns the interval as a total nanosecond count. The seconds
// component is folded in rather than discarded, so intervals of a second
// or more keep their full magnitude.
func (t Timestamp) Nanos() uint64 {
	return uint64(t.Sec)*nanosPerSecond + uint64(t.Nsec)
}
