package arrival

import (
	"errors"
	"io"
	"sync"
)

// Packet is an opaque handle to one received packet. The handle is owned by
// whichever component currently holds it and must be released exactly once
// by its final owner.
type Packet interface {
	// Timestamped reports whether the hardware attached a receive
	// timestamp to this packet.
	Timestamped() bool

	// Release returns the packet's resources to the source.
	Release()
}

// Source delivers received packets in bounded batches and resolves their
// hardware timestamps. Implementations cover live capture, pcap replay,
// and tests.
type Source interface {
	// PollBatch returns up to max packets in arrival order. An empty
	// batch means no traffic is pending; the call must not block beyond
	// a short internal poll timeout. io.EOF reports an exhausted source
	// (replay) and ends the run cleanly.
	PollBatch(max int) ([]Packet, error)

	// ReadHWTimestamp resolves the hardware receive timestamp recorded
	// for p. Fails with an error wrapping ErrTimestampUnavailable when
	// the hardware did not capture one.
	ReadHWTimestamp(p Packet) (Timestamp, error)

	// Close releases the underlying capture resources.
	Close() error
}

// MockPacket implements Packet for testing.
type MockPacket struct {
	// HasTimestamp is the hardware timestamp marker.
	HasTimestamp bool

	// HW is the timestamp returned for this packet.
	HW Timestamp

	// ReadErr is returned by ReadHWTimestamp if set.
	ReadErr error

	// Reads counts timestamp reads against this packet.
	Reads int

	// Released counts Release calls.
	Released int
}

// Timestamped reports the mock marker.
func (p *MockPacket) Timestamped() bool { return p.HasTimestamp }

// Release records the release.
func (p *MockPacket) Release() { p.Released++ }

// TimestampedPacket builds a mock packet carrying a hardware timestamp.
func TimestampedPacket(ts Timestamp) *MockPacket {
	return &MockPacket{HasTimestamp: true, HW: ts}
}

// PlainPacket builds a mock packet without a hardware timestamp.
func PlainPacket() *MockPacket {
	return &MockPacket{}
}

// MockSource implements Source for testing.
type MockSource struct {
	mu sync.Mutex

	// Batches holds the batches to return from successive PollBatch calls.
	Batches [][]Packet

	// PollIndex tracks the current position in Batches.
	PollIndex int

	// PollCalls counts PollBatch invocations.
	PollCalls int

	// PollErr is returned by every PollBatch call if set.
	PollErr error

	// ExhaustedErr is returned once Batches run out. Defaults to io.EOF.
	ExhaustedErr error

	// CloseErr is returned by Close if set.
	CloseErr error

	// Closed indicates whether Close was called.
	Closed bool
}

// NewMockSource creates a MockSource pre-loaded with the given batches.
func NewMockSource(batches ...[]Packet) *MockSource {
	return &MockSource{Batches: batches}
}

// AddBatch queues one more batch.
func (m *MockSource) AddBatch(pkts ...Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches = append(m.Batches, pkts)
}

// PollBatch returns the next queued batch, splitting batches larger than max.
func (m *MockSource) PollBatch(max int) ([]Packet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PollCalls++
	if m.Closed {
		return nil, errors.New("source closed")
	}
	if m.PollErr != nil {
		return nil, m.PollErr
	}
	if m.PollIndex >= len(m.Batches) {
		if m.ExhaustedErr != nil {
			return nil, m.ExhaustedErr
		}
		return nil, io.EOF
	}

	batch := m.Batches[m.PollIndex]
	if max > 0 && len(batch) > max {
		m.Batches[m.PollIndex] = batch[max:]
		return batch[:max], nil
	}
	m.PollIndex++
	return batch, nil
}

// ReadHWTimestamp returns the packet's configured timestamp or error.
func (m *MockSource) ReadHWTimestamp(p Packet) (Timestamp, error) {
	mp, ok := p.(*MockPacket)
	if !ok {
		return Timestamp{}, errors.New("not a mock packet")
	}
	mp.Reads++
	if mp.ReadErr != nil {
		return Timestamp{}, mp.ReadErr
	}
	return mp.HW, nil
}

// Close marks the source as closed.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseErr
}
