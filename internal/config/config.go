// Package config provides configuration parsing and validation for the sal
// allocation server.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "100ms" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"100ms\": %w", err)
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the complete server configuration.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Cluster ClusterConfig `yaml:"cluster"`
	Storage StorageConfig `yaml:"storage"`
	Logging LogConfig     `yaml:"logging"`
}

// NodeConfig holds the local server identity and timing.
type NodeConfig struct {
	// ID is the local node identifier on the bus (1..127).
	ID uint8 `yaml:"id"`

	// Listen is the local UDP address the RPC transport binds to.
	Listen string `yaml:"listen"`

	// UpdateInterval is the periodic tick driving replication; it is also
	// the request timeout for outgoing calls.
	UpdateInterval Duration `yaml:"updateInterval"`

	// BaseActivityTimeout is the base election timeout. The effective
	// timeout is staggered by node ID.
	BaseActivityTimeout Duration `yaml:"baseActivityTimeout"`
}

// ClusterConfig holds cluster membership configuration.
type ClusterConfig struct {
	// Size is the configured cluster size (1, 3 or 5). Zero means read the
	// size persisted during a previous run.
	Size uint8 `yaml:"size"`

	// Peers maps remote node IDs to their bus addresses.
	Peers []PeerConfig `yaml:"peers"`
}

// PeerConfig identifies one remote cluster member.
type PeerConfig struct {
	ID   uint8  `yaml:"id"`
	Addr string `yaml:"addr"`
}

// StorageConfig holds the persistent state location.
type StorageConfig struct {
	// Path is the Bolt database file holding the log, term and vote.
	Path string `yaml:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
