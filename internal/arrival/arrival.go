// Package arrival implements the burst-synchronized timestamp collection
// pipeline: it consumes hardware-timestamped packets arriving in fixed-size
// bursts, computes consecutive intra-burst arrival differences, and
// accumulates them in a pre-allocated bounded store for persistence at
// shutdown.
//
// The pipeline is single-threaded and cooperative. A Session owns all mutable
// state (accumulator, engine, store, counters) and drives it from one loop;
// packet sources and stats sinks are injected through interfaces so hardware,
// replay files, and tests all plug in the same way.
package arrival

import "errors"

// Errors surfaced by the pipeline. Both are fatal for a measurement run:
// an interrupted burst or an unreadable timestamp invalidates every
// subsequent difference.
var (
	// ErrProtocolViolation reports a non-timestamped packet observed while
	// a burst was being accumulated. The device is expected to deliver
	// bursts atomically, so an interleaved packet means the measurement
	// assumptions no longer hold.
	ErrProtocolViolation = errors.New("burst interrupted by non-timestamped packet")

	// ErrTimestampUnavailable reports a failed hardware timestamp read for
	// a packet that carried the timestamp marker.
	ErrTimestampUnavailable = errors.New("hardware timestamp unavailable")
)

// StatsSink receives pipeline counter updates for live monitoring. All
// methods are invoked from the session loop; implementations that are read
// from other goroutines must do their own locking.
type StatsSink interface {
	// AddReceived counts packets pulled from the source.
	AddReceived(n int)

	// AddTimestamped counts packets carrying the hardware timestamp marker.
	AddTimestamped(n int)

	// AddEvaluated counts timestamped packets whose burst was fully
	// differenced.
	AddEvaluated(n int)

	// AddDiffs counts difference values appended to the store.
	AddDiffs(n int)

	// AddDiffsDropped counts difference values rejected because the store
	// was at capacity.
	AddDiffsDropped(n int)
}

// noopStats is the default sink when no monitoring is attached.
type noopStats struct{}

func (noopStats) AddReceived(int)     {}
func (noopStats) AddTimestamped(int)  {}
func (noopStats) AddEvaluated(int)    {}
func (noopStats) AddDiffs(int)        {}
func (noopStats) AddDiffsDropped(int) {}
