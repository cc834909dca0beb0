package arrival

import "fmt"

// TimestampReader is the slice of Source the engine needs: resolving
// hardware timestamps for accumulated packets.
type TimestampReader interface {
	ReadHWTimestamp(p Packet) (Timestamp, error)
}

// DifferenceEngine consumes completed bursts. For each burst it reads every
// hardware timestamp in arrival order, appends the consecutive differences
// to the store, and releases the packets in ascending order.
type DifferenceEngine struct {
	reader    TimestampReader
	store     *DiffStore
	stats     StatsSink
	scratch   []Timestamp
	evaluated uint64
}

// NewDifferenceEngine creates an engine writing into store. The timestamp
// scratch buffer is sized to burstSize up front so Process never allocates.
// A nil stats sink disables monitoring callbacks.
func NewDifferenceEngine(reader TimestampReader, store *DiffStore, burstSize int, stats StatsSink) *DifferenceEngine {
	if stats == nil {
		stats = noopStats{}
	}
	return &DifferenceEngine{
		reader:  reader,
		store:   store,
		stats:   stats,
		scratch: make([]Timestamp, 0, burstSize),
	}
}

// Process differences one completed burst. Timestamps are read first, in
// arrival order; only then are differences computed and the packets
// released, each exactly once, in ascending index order.
//
// A failed timestamp read is fatal for the measurement run: the error wraps
// the source's failure and the burst's packets are released before
// returning, so the batch in flight still drains.
func (e *DifferenceEngine) Process(burst []Packet) error {
	ts := e.scratch[:0]
	for i, p := range burst {
		t, err := e.reader.ReadHWTimestamp(p)
		if err != nil {
			for _, q := range burst {
				q.Release()
			}
			return fmt.Errorf("timestamp read for burst packet %d: %w", i, err)
		}
		ts = append(ts, t)
	}

	for i := 1; i < len(ts); i++ {
		d := ts[i].Sub(ts[i-1])
		if e.store.Append(d.Nanos()) {
			e.stats.AddDiffs(1)
		} else {
			e.stats.AddDiffsDropped(1)
		}
	}

	for _, p := range burst {
		p.Release()
	}
	e.evaluated += uint64(len(burst))
	e.stats.AddEvaluated(len(burst))
	return nil
}

// Evaluated returns the running count of packets whose bursts were fully
// differenced, including each burst's first packet.
func (e *DifferenceEngine) Evaluated() uint64 { return e.evaluated }
