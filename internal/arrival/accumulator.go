package arrival

import "fmt"

// DefaultBurstSize is the number of timestamped packets the capture device
// delivers per burst.
const DefaultBurstSize = 4

// BurstAccumulator collects the timestamped packets of one in-flight burst.
// Storage for the configured burst size is allocated once and reused, so
// steady-state operation never allocates.
type BurstAccumulator struct {
	slots []Packet
	n     int
}

// NewBurstAccumulator creates an accumulator for bursts of burstSize
// packets. burstSize must be at least 2 (a burst of one yields no
// differences).
func NewBurstAccumulator(burstSize int) *BurstAccumulator {
	if burstSize < 2 {
		panic("arrival: burst size must be at least 2")
	}
	return &BurstAccumulator{slots: make([]Packet, burstSize)}
}

// Append adds the next timestamped packet and reports whether the burst is
// now complete. Appending to a complete burst is an invariant violation:
// the loop must hand a completed burst off and Reset before the next
// append.
func (a *BurstAccumulator) Append(p Packet) (complete bool) {
	if a.n == len(a.slots) {
		panic(fmt.Sprintf("arrival: append to complete burst of %d", a.n))
	}
	a.slots[a.n] = p
	a.n++
	return a.n == len(a.slots)
}

// Reset clears the accumulator in O(1). Safe to call on an already-empty
// accumulator.
func (a *BurstAccumulator) Reset() {
	for i := 0; i < a.n; i++ {
		a.slots[i] = nil
	}
	a.n = 0
}

// Len returns the number of packets accumulated so far.
func (a *BurstAccumulator) Len() int { return a.n }

// BurstSize returns the configured burst size.
func (a *BurstAccumulator) BurstSize() int { return len(a.slots) }

// InProgress reports whether a burst has started but not completed.
func (a *BurstAccumulator) InProgress() bool {
	return a.n > 0 && a.n < len(a.slots)
}

// Burst returns the accumulated packets in arrival order. The slice aliases
// the accumulator's storage and is invalidated by Reset.
func (a *BurstAccumulator) Burst() []Packet {
	return a.slots[:a.n]
}
