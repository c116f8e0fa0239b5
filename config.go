package wireproto

// config.go: typed, JSON-(de)serializable configuration for Client and
// Server. Field-level doc comments and the flat exported-struct shape
// follow the teacher's own cli.go Config; JSON marshaling uses
// github.com/goccy/go-json rather than encoding/json, matching the
// teacher's own choice (hdr.go, mid.go) for anything that crosses the
// wire or touches disk.

import (
	"os"
	"time"

	gjson "github.com/goccy/go-json"
)

// Config holds the tunables of a Client pool or Server, loadable from and
// savable to a JSON file on disk.
type Config struct {
	// TargetCapacity is the number of connections a Client pool grows
	// toward. Growth is demand-driven; see ensureConnectionAvailable.
	TargetCapacity int `json:"target_capacity"`

	// MaxFails is the circuit breaker's fails-before-tripping threshold.
	MaxFails uint64 `json:"max_fails"`

	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open probe.
	ResetTimeout time.Duration `json:"reset_timeout_ns"`

	// DialTimeout bounds a single connect attempt; zero means no timeout.
	DialTimeout time.Duration `json:"dial_timeout_ns"`

	// Verbose enables timestamped debug logging via logf.
	Verbose bool `json:"verbose"`
}

// DefaultConfig returns the values a bare Client/Server should start with.
func DefaultConfig() *Config {
	return &Config{
		TargetCapacity: 4,
		MaxFails:       8,
		ResetTimeout:   30 * time.Second,
		DialTimeout:    10 * time.Second,
		Verbose:        false,
	}
}

func (c *Config) apply() {
	if c.TargetCapacity <= 0 {
		c.TargetCapacity = 4
	}
	if c.MaxFails == 0 {
		c.MaxFails = 8
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	SetVerbose(c.Verbose)
}

// LoadConfig reads and parses a Config from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := gjson.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.apply()
	return cfg, nil
}

// Save writes c to path as JSON.
func (c *Config) Save(path string) error {
	data, err := gjson.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
