package config

import "time"

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:                  1,
			Listen:              ":9033",
			UpdateInterval:      Duration(100 * time.Millisecond),
			BaseActivityTimeout: Duration(500 * time.Millisecond),
		},
		Cluster: ClusterConfig{
			Size:  3,
			Peers: nil,
		},
		Storage: StorageConfig{
			Path: "/var/lib/sal/sal.db",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}
