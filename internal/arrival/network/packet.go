// Package network provides the packet sources feeding the capture
// pipeline: pcap file replay (pure Go) and live interface capture (pcap
// build tag). Both serve arrival.Packet handles whose hardware timestamp is
// the capture layer's receive timestamp, with PTP traffic carrying the
// timestamp marker.
package network

import (
	"fmt"

	"github.com/banshee-data/precision.report/internal/arrival"
)

// capturedPacket is the handle type shared by the capture-backed sources.
type capturedPacket struct {
	ts          arrival.Timestamp
	timestamped bool
	released    bool
}

// Timestamped reports whether the capture layer attached a receive
// timestamp to this packet.
func (p *capturedPacket) Timestamped() bool { return p.timestamped }

// Release marks the handle as returned to its source.
func (p *capturedPacket) Release() { p.released = true }

// readCapturedTimestamp resolves ReadHWTimestamp for capture-backed handles.
func readCapturedTimestamp(p arrival.Packet) (arrival.Timestamp, error) {
	cp, ok := p.(*capturedPacket)
	if !ok {
		return arrival.Timestamp{}, fmt.Errorf("foreign packet handle %T", p)
	}
	if !cp.timestamped {
		return arrival.Timestamp{}, fmt.Errorf("packet carries no receive timestamp: %w", arrival.ErrTimestampUnavailable)
	}
	return cp.ts, nil
}
