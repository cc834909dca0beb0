package network

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/precision.report/internal/arrival"
	"github.com/banshee-data/precision.report/internal/monitoring"
)

// ReplaySource serves packets out of a pcap capture file. Each record's
// capture timestamp stands in for the hardware receive timestamp, so a
// recorded burst replays into the same differences the live station would
// have measured. Needs no capture hardware and no cgo.
type ReplaySource struct {
	path string
	f    *os.File
	r    *pcapgo.Reader
	link layers.LinkType

	read    uint64
	eof     bool
	pending error
}

var _ arrival.Source = (*ReplaySource)(nil)

// NewReplaySource opens a pcap file for replay.
func NewReplaySource(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read pcap header %s: %w", path, err)
	}
	monitoring.Logf("replay: %s open (link type %v)", path, r.LinkType())
	return &ReplaySource{path: path, f: f, r: r, link: r.LinkType()}, nil
}

// PollBatch returns up to max packets from the file, in capture order.
// io.EOF reports the file exhausted, which ends a replay run cleanly.
func (s *ReplaySource) PollBatch(max int) ([]arrival.Packet, error) {
	if s.pending != nil {
		err := s.pending
		s.pending = nil
		return nil, err
	}
	if s.eof {
		return nil, io.EOF
	}
	if max <= 0 {
		max = arrival.DefaultBatchSize
	}

	batch := make([]arrival.Packet, 0, max)
	for len(batch) < max {
		data, ci, err := s.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
				break
			}
			err = fmt.Errorf("read pcap record %d from %s: %w", s.read+1, s.path, err)
			// Hand over what was already read; the failure surfaces on
			// the next poll.
			if len(batch) == 0 {
				return nil, err
			}
			s.pending = err
			break
		}
		s.read++
		pkt := gopacket.NewPacket(data, s.link, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		batch = append(batch, &capturedPacket{
			ts:          arrival.TimestampFromTime(ci.Timestamp),
			timestamped: IsPTP(pkt),
		})
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// ReadHWTimestamp resolves the capture timestamp recorded for p.
func (s *ReplaySource) ReadHWTimestamp(p arrival.Packet) (arrival.Timestamp, error) {
	return readCapturedTimestamp(p)
}

// Close closes the underlying file.
func (s *ReplaySource) Close() error {
	monitoring.Logf("replay: closing %s after %d records", s.path, s.read)
	return s.f.Close()
}
