//go:build !pcap
// +build !pcap

package network

import (
	"errors"
	"time"

	"github.com/banshee-data/precision.report/internal/arrival"
	"github.com/banshee-data/precision.report/internal/timeutil"
)

var errLiveUnavailable = errors.New("live capture support not compiled in (requires pcap build tag)")

// LiveConfig mirrors the pcap-enabled configuration so callers compile
// without the tag.
type LiveConfig struct {
	SnapLen     int
	Promiscuous bool
	ReadTimeout time.Duration
	BPF         string
	LinkWait    time.Duration
	Clock       timeutil.Clock
}

// LiveSource is unavailable without the pcap build tag.
type LiveSource struct{}

var _ arrival.Source = (*LiveSource)(nil)

// NewLiveSource is a stub that returns an error when live capture support
// is not compiled in. Build with -tags=pcap to enable it.
func NewLiveSource(iface string, cfg LiveConfig) (*LiveSource, error) {
	return nil, errLiveUnavailable
}

// PollBatch always fails on the stub.
func (s *LiveSource) PollBatch(max int) ([]arrival.Packet, error) {
	return nil, errLiveUnavailable
}

// ReadHWTimestamp always fails on the stub.
func (s *LiveSource) ReadHWTimestamp(p arrival.Packet) (arrival.Timestamp, error) {
	return arrival.Timestamp{}, errLiveUnavailable
}

// Close is a no-op on the stub.
func (s *LiveSource) Close() error { return nil }
