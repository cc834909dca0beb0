package network

import (
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/precision.report/internal/monitoring"
	"github.com/banshee-data/precision.report/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestWaitForLinkAlreadyUp(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	probe := func(string) (net.Flags, error) { return net.FlagUp, nil }

	if err := waitForLink(clock, "eth0", time.Second, probe); err != nil {
		t.Fatalf("waitForLink: %v", err)
	}
	if n := len(clock.Sleeps()); n != 0 {
		t.Errorf("slept %d times for an up link, want 0", n)
	}
}

func TestWaitForLinkComesUp(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	probes := 0
	probe := func(string) (net.Flags, error) {
		probes++
		if probes <= 3 {
			return 0, nil
		}
		return net.FlagUp, nil
	}

	if err := waitForLink(clock, "eth0", time.Minute, probe); err != nil {
		t.Fatalf("waitForLink: %v", err)
	}
	if probes != 4 {
		t.Errorf("probed %d times, want 4", probes)
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 3 {
		t.Fatalf("slept %d times, want 3", len(sleeps))
	}
	for i, d := range sleeps {
		if d != linkPollInterval {
			t.Errorf("sleep %d = %v, want %v", i, d, linkPollInterval)
		}
	}
}

func TestWaitForLinkTimesOut(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	probe := func(string) (net.Flags, error) { return 0, nil }

	err := waitForLink(clock, "eth9", 250*time.Millisecond, probe)
	if err == nil || !strings.Contains(err.Error(), "link not up after") {
		t.Fatalf("waitForLink error = %v, want link timeout", err)
	}
}

func TestWaitForLinkProbeError(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	probeErr := errors.New("no such device")
	probe := func(string) (net.Flags, error) { return 0, probeErr }

	err := waitForLink(clock, "eth9", time.Second, probe)
	if !errors.Is(err, probeErr) {
		t.Fatalf("waitForLink error = %v, want wrapped probe error", err)
	}
}

func TestWaitForLinkUnknownInterface(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	if err := WaitForLink(clock, "no-such-interface-0", 100*time.Millisecond); err == nil {
		t.Error("WaitForLink succeeded on a nonexistent interface")
	}
}
