package arrival

// DefaultStoreCapacity is the number of difference values a store holds
// before it starts dropping. At 8 bytes per entry the default costs 80 MB,
// allocated once at startup.
const DefaultStoreCapacity = 10_000_000

// DiffStore is a fixed-capacity, append-only buffer of nanosecond
// difference values. The backing array is allocated in full at
// construction; appends past capacity are counted and dropped rather
// than grown or overwritten.
type DiffStore struct {
	buf     []uint64
	n       int
	dropped uint64
}

// NewDiffStore allocates a store with the given capacity. capacity must be
// positive.
func NewDiffStore(capacity int) *DiffStore {
	if capacity <= 0 {
		panic("arrival: store capacity must be positive")
	}
	return &DiffStore{buf: make([]uint64, capacity)}
}

// Append writes v at the cursor and advances it. It returns false once the
// store is full; the value is dropped and counted, and the store is left
// unchanged.
func (s *DiffStore) Append(v uint64) bool {
	if s.n == len(s.buf) {
		s.dropped++
		return false
	}
	s.buf[s.n] = v
	s.n++
	return true
}

// Len returns the number of stored values.
func (s *DiffStore) Len() int { return s.n }

// Cap returns the fixed capacity.
func (s *DiffStore) Cap() int { return len(s.buf) }

// Dropped returns the number of values rejected at capacity.
func (s *DiffStore) Dropped() uint64 { return s.dropped }

// Overflowed reports whether any append was rejected.
func (s *DiffStore) Overflowed() bool { return s.dropped > 0 }

// Drain returns all stored values in append order. The slice aliases the
// store's backing array; it is meant to be consumed once, at shutdown, for
// persistence.
func (s *DiffStore) Drain() []uint64 {
	return s.buf[:s.n]
}
