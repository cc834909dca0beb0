package arrival

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/precision.report/internal/monitoring"
	"github.com/banshee-data/precision.report/internal/timeutil"
)

// DefaultBatchSize caps how many packets a single poll may return.
const DefaultBatchSize = 32

// Config carries the tunable parameters of a capture session.
type Config struct {
	// BurstSize is the number of timestamped packets per burst.
	BurstSize int

	// BatchSize caps packets returned by a single poll.
	BatchSize int

	// StoreCapacity is the difference store's fixed capacity.
	StoreCapacity int

	// StatsInterval is the cadence of progress log lines. Zero disables
	// them.
	StatsInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.StoreCapacity == 0 {
		c.StoreCapacity = DefaultStoreCapacity
	}
	return c
}

// Validate rejects unusable parameter combinations.
func (c Config) Validate() error {
	if c.BurstSize < 2 {
		return fmt.Errorf("burst size %d: need at least 2", c.BurstSize)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size %d: need at least 1", c.BatchSize)
	}
	if c.StoreCapacity < 1 {
		return fmt.Errorf("store capacity %d: need at least 1", c.StoreCapacity)
	}
	return nil
}

// Summary is the final accounting of a capture run.
type Summary struct {
	PacketsReceived    uint64 `json:"packets_received"`
	PacketsTimestamped uint64 `json:"packets_timestamped"`
	PacketsEvaluated   uint64 `json:"packets_evaluated"`
	DiffsRecorded      int    `json:"diffs_recorded"`
	DiffsDropped       uint64 `json:"diffs_dropped"`
	Overflowed         bool   `json:"overflowed"`
}

// Session owns one capture run: the source, the burst accumulator, the
// difference engine, the store, and the run counters. All mutable state is
// touched only by the goroutine driving Run.
type Session struct {
	cfg    Config
	source Source
	acc    *BurstAccumulator
	engine *DifferenceEngine
	store  *DiffStore
	stats  StatsSink
	clock  timeutil.Clock

	received    uint64
	timestamped uint64
	lastLog     time.Time
}

// NewSession builds a session around source. Zero Config fields take the
// package defaults. A nil stats sink disables monitoring callbacks; a nil
// clock uses real time.
func NewSession(source Source, cfg Config, stats StatsSink, clock timeutil.Clock) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	if stats == nil {
		stats = noopStats{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	store := NewDiffStore(cfg.StoreCapacity)
	return &Session{
		cfg:    cfg,
		source: source,
		acc:    NewBurstAccumulator(cfg.BurstSize),
		engine: NewDifferenceEngine(source, store, cfg.BurstSize, stats),
		store:  store,
		stats:  stats,
		clock:  clock,
	}, nil
}

// Run drives the poll loop until ctx is cancelled, the source is exhausted,
// or a fatal pipeline error occurs. Cancellation is observed only between
// batches: a batch already pulled is always fully processed, so every
// handle in it is released or differenced before Run returns.
func (s *Session) Run(ctx context.Context) error {
	s.lastLog = s.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		batch, err := s.source.PollBatch(s.cfg.BatchSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				monitoring.Logf("capture: source exhausted")
				return nil
			}
			return fmt.Errorf("poll batch: %w", err)
		}
		if len(batch) == 0 {
			s.maybeLogProgress()
			continue
		}

		s.received += uint64(len(batch))
		s.stats.AddReceived(len(batch))
		if err := s.processBatch(batch); err != nil {
			return err
		}
		s.maybeLogProgress()
	}
}

// processBatch classifies and routes every packet of one batch in arrival
// order. On a fatal error the unprocessed remainder of the batch and any
// accumulated handles are released before returning, so a failing run does
// not leak handles.
func (s *Session) processBatch(batch []Packet) error {
	for i, p := range batch {
		if p.Timestamped() {
			s.timestamped++
			s.stats.AddTimestamped(1)
			if complete := s.acc.Append(p); !complete {
				continue
			}
			err := s.engine.Process(s.acc.Burst())
			s.acc.Reset()
			if err != nil {
				releasePackets(batch[i+1:])
				return err
			}
			continue
		}

		if s.acc.InProgress() {
			err := fmt.Errorf("%w: plain packet after %d of %d timestamped",
				ErrProtocolViolation, s.acc.Len(), s.acc.BurstSize())
			releasePackets(s.acc.Burst())
			s.acc.Reset()
			releasePackets(batch[i:])
			return err
		}
		p.Release()
	}
	return nil
}

func releasePackets(pkts []Packet) {
	for _, p := range pkts {
		p.Release()
	}
}

func (s *Session) maybeLogProgress() {
	if s.cfg.StatsInterval <= 0 {
		return
	}
	if s.clock.Since(s.lastLog) < s.cfg.StatsInterval {
		return
	}
	s.lastLog = s.clock.Now()
	monitoring.Logf("capture: %d received, %d timestamped, %d diffs stored (%d dropped)",
		s.received, s.timestamped, s.store.Len(), s.store.Dropped())
}

// Summary returns the run's final accounting. Call it after Run has
// returned; it reads state owned by the loop.
func (s *Session) Summary() Summary {
	return Summary{
		PacketsReceived:    s.received,
		PacketsTimestamped: s.timestamped,
		PacketsEvaluated:   s.engine.Evaluated(),
		DiffsRecorded:      s.store.Len(),
		DiffsDropped:       s.store.Dropped(),
		Overflowed:         s.store.Overflowed(),
	}
}

// Drain returns the stored difference values in append order for
// persistence. The slice aliases the store's backing array.
func (s *Session) Drain() []uint64 {
	return s.store.Drain()
}

// Config returns the session's effective configuration after defaulting.
func (s *Session) Config() Config {
	return s.cfg
}
