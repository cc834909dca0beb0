package network

import (
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/precision.report/internal/monitoring"
	"github.com/banshee-data/precision.report/internal/timeutil"
)

// linkPollInterval is how often the link wait re-probes the interface.
const linkPollInterval = 100 * time.Millisecond

// linkProbe reports the current flags of a named interface.
type linkProbe func(name string) (net.Flags, error)

// WaitForLink blocks until the named interface reports up, polling every
// 100ms, or fails once timeout elapses. Capture must not start on a dark
// port: a handle opened before link-up would poll a silent interface and
// the run would look like dead air.
func WaitForLink(clock timeutil.Clock, name string, timeout time.Duration) error {
	return waitForLink(clock, name, timeout, func(name string) (net.Flags, error) {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return 0, err
		}
		return iface.Flags, nil
	})
}

func waitForLink(clock timeutil.Clock, name string, timeout time.Duration, probe linkProbe) error {
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	deadline := clock.Now().Add(timeout)
	logged := false
	for {
		flags, err := probe(name)
		if err != nil {
			return fmt.Errorf("interface %s: %w", name, err)
		}
		if flags&net.FlagUp != 0 {
			monitoring.Logf("network: link up on %s", name)
			return nil
		}
		if !clock.Now().Before(deadline) {
			return fmt.Errorf("interface %s: link not up after %v", name, timeout)
		}
		if !logged {
			monitoring.Logf("network: waiting for link on %s (timeout %v)", name, timeout)
			logged = true
		}
		clock.Sleep(linkPollInterval)
	}
}
