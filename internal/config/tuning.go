package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the capture tuning parameters. All fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// accessors fall back to hardcoded defaults for absent fields.
type TuningConfig struct {
	// Pipeline params
	BurstSize     *int `json:"burst_size,omitempty"`
	BatchSize     *int `json:"batch_size,omitempty"`
	StoreCapacity *int `json:"store_capacity,omitempty"`

	// Capture device params
	SnapLen     *int    `json:"snap_len,omitempty"`
	Promiscuous *bool   `json:"promiscuous,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty"` // duration string like "10ms"
	LinkWait    *string `json:"link_wait,omitempty"`    // duration string like "10s"
	BPF         *string `json:"bpf,omitempty"`

	// Reporting params
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "5s"
}

// Helper functions to create pointers
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// DefaultTuningConfig returns a TuningConfig with every field populated
// with its default value, matching what the Get* accessors return for an
// empty config.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		BurstSize:     ptrInt(4),
		BatchSize:     ptrInt(32),
		StoreCapacity: ptrInt(10_000_000),
		SnapLen:       ptrInt(256),
		Promiscuous:   ptrBool(true),
		ReadTimeout:   ptrString("10ms"),
		LinkWait:      ptrString("10s"),
		BPF:           ptrString(""),
		StatsInterval: ptrString("5s"),
	}
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file fall back to defaults,
// so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/arrival/monitor/
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.BurstSize != nil && *c.BurstSize < 2 {
		return fmt.Errorf("burst_size must be at least 2, got %d", *c.BurstSize)
	}
	if c.BatchSize != nil && *c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", *c.BatchSize)
	}
	if c.StoreCapacity != nil && *c.StoreCapacity < 1 {
		return fmt.Errorf("store_capacity must be at least 1, got %d", *c.StoreCapacity)
	}
	if c.SnapLen != nil && *c.SnapLen < 64 {
		return fmt.Errorf("snap_len must be at least 64, got %d", *c.SnapLen)
	}

	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		if _, err := time.ParseDuration(*c.ReadTimeout); err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
	}
	if c.LinkWait != nil && *c.LinkWait != "" {
		if _, err := time.ParseDuration(*c.LinkWait); err != nil {
			return fmt.Errorf("invalid link_wait '%s': %w", *c.LinkWait, err)
		}
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		if _, err := time.ParseDuration(*c.StatsInterval); err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
	}

	return nil
}

// GetBurstSize returns the burst_size value or the default.
func (c *TuningConfig) GetBurstSize() int {
	if c.BurstSize == nil {
		return 4 // default
	}
	return *c.BurstSize
}

// GetBatchSize returns the batch_size value or the default.
func (c *TuningConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return 32 // default
	}
	return *c.BatchSize
}

// GetStoreCapacity returns the store_capacity value or the default.
func (c *TuningConfig) GetStoreCapacity() int {
	if c.StoreCapacity == nil {
		return 10_000_000 // default
	}
	return *c.StoreCapacity
}

// GetSnapLen returns the snap_len value or the default.
func (c *TuningConfig) GetSnapLen() int {
	if c.SnapLen == nil {
		return 256 // default
	}
	return *c.SnapLen
}

// GetPromiscuous returns the promiscuous value or the default.
func (c *TuningConfig) GetPromiscuous() bool {
	if c.Promiscuous == nil {
		return true // default: a measurement tap sees all traffic
	}
	return *c.Promiscuous
}

// GetReadTimeout parses and returns the ReadTimeout as a time.Duration.
func (c *TuningConfig) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil || *c.ReadTimeout == "" {
		return 10 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil {
		return 10 * time.Millisecond // default on parse error
	}
	return d
}

// GetLinkWait parses and returns the LinkWait as a time.Duration.
func (c *TuningConfig) GetLinkWait() time.Duration {
	if c.LinkWait == nil || *c.LinkWait == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.LinkWait)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetBPF returns the bpf capture filter or the default (no filter).
func (c *TuningConfig) GetBPF() string {
	if c.BPF == nil {
		return ""
	}
	return *c.BPF
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}
