package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/precision.report/internal/testutil"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Defaults are set via pointers
	if cfg.BurstSize == nil || *cfg.BurstSize != 4 {
		t.Errorf("Expected BurstSize 4, got %v", cfg.BurstSize)
	}
	if cfg.BatchSize == nil || *cfg.BatchSize != 32 {
		t.Errorf("Expected BatchSize 32, got %v", cfg.BatchSize)
	}
	if cfg.StoreCapacity == nil || *cfg.StoreCapacity != 10_000_000 {
		t.Errorf("Expected StoreCapacity 10000000, got %v", cfg.StoreCapacity)
	}
	if cfg.ReadTimeout == nil || *cfg.ReadTimeout != "10ms" {
		t.Errorf("Expected ReadTimeout '10ms', got %v", cfg.ReadTimeout)
	}

	// The populated defaults agree with the accessors on an empty config
	empty := EmptyTuningConfig()
	if cfg.GetBurstSize() != empty.GetBurstSize() {
		t.Errorf("default BurstSize %d != empty accessor %d", cfg.GetBurstSize(), empty.GetBurstSize())
	}
	if cfg.GetStatsInterval() != empty.GetStatsInterval() {
		t.Errorf("default StatsInterval %v != empty accessor %v", cfg.GetStatsInterval(), empty.GetStatsInterval())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestEmptyConfigAccessorDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetBurstSize() != 4 {
		t.Errorf("GetBurstSize() = %d, want 4", cfg.GetBurstSize())
	}
	if cfg.GetBatchSize() != 32 {
		t.Errorf("GetBatchSize() = %d, want 32", cfg.GetBatchSize())
	}
	if cfg.GetStoreCapacity() != 10_000_000 {
		t.Errorf("GetStoreCapacity() = %d, want 10000000", cfg.GetStoreCapacity())
	}
	if cfg.GetSnapLen() != 256 {
		t.Errorf("GetSnapLen() = %d, want 256", cfg.GetSnapLen())
	}
	if cfg.GetPromiscuous() != true {
		t.Errorf("GetPromiscuous() = %v, want true", cfg.GetPromiscuous())
	}
	if cfg.GetReadTimeout() != 10*time.Millisecond {
		t.Errorf("GetReadTimeout() = %v, want 10ms", cfg.GetReadTimeout())
	}
	if cfg.GetLinkWait() != 10*time.Second {
		t.Errorf("GetLinkWait() = %v, want 10s", cfg.GetLinkWait())
	}
	if cfg.GetBPF() != "" {
		t.Errorf("GetBPF() = %q, want empty", cfg.GetBPF())
	}
	if cfg.GetStatsInterval() != 5*time.Second {
		t.Errorf("GetStatsInterval() = %v, want 5s", cfg.GetStatsInterval())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	testJSON := `{
  "burst_size": 8,
  "batch_size": 64,
  "store_capacity": 1000,
  "promiscuous": false,
  "read_timeout": "2ms",
  "bpf": "udp port 319",
  "stats_interval": "30s"
}`
	configPath := testutil.WriteTempFile(t, t.TempDir(), "test_config.json", testJSON)

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetBurstSize() != 8 {
		t.Errorf("GetBurstSize() = %d, want 8", cfg.GetBurstSize())
	}
	if cfg.GetBatchSize() != 64 {
		t.Errorf("GetBatchSize() = %d, want 64", cfg.GetBatchSize())
	}
	if cfg.GetStoreCapacity() != 1000 {
		t.Errorf("GetStoreCapacity() = %d, want 1000", cfg.GetStoreCapacity())
	}
	if cfg.GetPromiscuous() != false {
		t.Errorf("GetPromiscuous() = %v, want false", cfg.GetPromiscuous())
	}
	if cfg.GetReadTimeout() != 2*time.Millisecond {
		t.Errorf("GetReadTimeout() = %v, want 2ms", cfg.GetReadTimeout())
	}
	if cfg.GetBPF() != "udp port 319" {
		t.Errorf("GetBPF() = %q, want 'udp port 319'", cfg.GetBPF())
	}
	if cfg.GetStatsInterval() != 30*time.Second {
		t.Errorf("GetStatsInterval() = %v, want 30s", cfg.GetStatsInterval())
	}

	// Partial config: omitted fields keep their defaults
	if cfg.SnapLen != nil {
		t.Errorf("SnapLen = %v, want nil for omitted field", cfg.SnapLen)
	}
	if cfg.GetSnapLen() != 256 {
		t.Errorf("GetSnapLen() = %d, want default 256", cfg.GetSnapLen())
	}
}

func TestLoadTuningConfigRejectsInvalid(t *testing.T) {
	tmpDir := t.TempDir()

	cases := []struct {
		name string
		json string
	}{
		{"burst size too small", `{"burst_size": 1}`},
		{"zero batch size", `{"batch_size": 0}`},
		{"negative capacity", `{"store_capacity": -1}`},
		{"tiny snaplen", `{"snap_len": 10}`},
		{"bad read timeout", `{"read_timeout": "fast"}`},
		{"bad stats interval", `{"stats_interval": "sometimes"}`},
		{"malformed json", `{"burst_size": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := testutil.WriteTempFile(t, tmpDir, "bad.json", tc.json)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Errorf("LoadTuningConfig accepted %s", tc.json)
			}
		})
	}
}

func TestLoadTuningConfigPathChecks(t *testing.T) {
	if _, err := LoadTuningConfig("tuning.yaml"); err == nil {
		t.Error("LoadTuningConfig accepted a non-.json extension")
	}
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadTuningConfig succeeded on a missing file")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	// The shipped defaults file must agree with the accessor defaults.
	if cfg.GetBurstSize() != 4 {
		t.Errorf("shipped burst_size = %d, want 4", cfg.GetBurstSize())
	}
	if cfg.GetStoreCapacity() != 10_000_000 {
		t.Errorf("shipped store_capacity = %d, want 10000000", cfg.GetStoreCapacity())
	}
	if cfg.GetStatsInterval() != 5*time.Second {
		t.Errorf("shipped stats_interval = %v, want 5s", cfg.GetStatsInterval())
	}
}
