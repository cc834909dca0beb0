//go:build pcap
// +build pcap

package network

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/precision.report/internal/arrival"
	"github.com/banshee-data/precision.report/internal/monitoring"
	"github.com/banshee-data/precision.report/internal/timeutil"
)

// LiveConfig configures live capture on a network interface.
type LiveConfig struct {
	// SnapLen caps captured bytes per packet. PTP frames fit comfortably
	// inside the default of 256.
	SnapLen int

	// Promiscuous enables promiscuous mode on the device.
	Promiscuous bool

	// ReadTimeout bounds how long one poll may wait for traffic.
	// Defaults to 10ms.
	ReadTimeout time.Duration

	// BPF is an optional capture filter, e.g.
	// "ether proto 0x88f7 or udp port 319 or udp port 320".
	BPF string

	// LinkWait bounds the wait for the interface to come up before the
	// handle opens. Zero skips the wait.
	LinkWait time.Duration

	// Clock drives the link wait. Nil uses real time.
	Clock timeutil.Clock
}

// LiveSource captures packets from a hardware interface via libpcap.
// Only available when building with the 'pcap' build tag.
type LiveSource struct {
	iface  string
	handle *pcap.Handle
	read   uint64
}

var _ arrival.Source = (*LiveSource)(nil)

// NewLiveSource waits for link on iface and opens a live capture handle.
func NewLiveSource(iface string, cfg LiveConfig) (*LiveSource, error) {
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = 256
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Millisecond
	}

	if cfg.LinkWait > 0 {
		if err := WaitForLink(cfg.Clock, iface, cfg.LinkWait); err != nil {
			return nil, err
		}
	}

	handle, err := pcap.OpenLive(iface, int32(cfg.SnapLen), cfg.Promiscuous, cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("open live capture on %s: %w", iface, err)
	}
	if cfg.BPF != "" {
		if err := handle.SetBPFFilter(cfg.BPF); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", cfg.BPF, err)
		}
		monitoring.Logf("live: BPF filter set: %s", cfg.BPF)
	}
	monitoring.Logf("live: capturing on %s (snaplen %d, promiscuous %v)", iface, cfg.SnapLen, cfg.Promiscuous)
	return &LiveSource{iface: iface, handle: handle}, nil
}

// PollBatch reads up to max buffered packets. A poll that hits the read
// timeout returns what it has, so the session loop keeps observing
// shutdown even on a quiet wire.
func (s *LiveSource) PollBatch(max int) ([]arrival.Packet, error) {
	if max <= 0 {
		max = arrival.DefaultBatchSize
	}
	batch := make([]arrival.Packet, 0, max)
	for len(batch) < max {
		data, ci, err := s.handle.ReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				return batch, nil
			}
			if len(batch) > 0 {
				return batch, nil
			}
			if errors.Is(err, io.EOF) {
				// A live handle never ends cleanly; the device went away.
				return nil, fmt.Errorf("capture on %s ended unexpectedly", s.iface)
			}
			return nil, fmt.Errorf("read from %s: %w", s.iface, err)
		}
		s.read++
		pkt := gopacket.NewPacket(data, s.handle.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		batch = append(batch, &capturedPacket{
			ts:          arrival.TimestampFromTime(ci.Timestamp),
			timestamped: IsPTP(pkt),
		})
	}
	return batch, nil
}

// ReadHWTimestamp resolves the capture timestamp recorded for p.
func (s *LiveSource) ReadHWTimestamp(p arrival.Packet) (arrival.Timestamp, error) {
	return readCapturedTimestamp(p)
}

// Close closes the capture handle.
func (s *LiveSource) Close() error {
	monitoring.Logf("live: closing %s after %d packets", s.iface, s.read)
	s.handle.Close()
	return nil
}
