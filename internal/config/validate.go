package config

import "fmt"

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Node.ID == 0 || c.Node.ID > 127 {
		return fmt.Errorf("config: node.id must be in 1..127, got %d", c.Node.ID)
	}

	if c.Node.Listen == "" {
		return fmt.Errorf("config: node.listen is required")
	}

	if c.Node.UpdateInterval <= 0 {
		return fmt.Errorf("config: node.updateInterval must be positive")
	}

	if c.Node.BaseActivityTimeout <= c.Node.UpdateInterval {
		return fmt.Errorf("config: node.baseActivityTimeout must be greater than node.updateInterval")
	}

	if c.Cluster.Size != 0 && c.Cluster.Size != 1 && c.Cluster.Size != 3 && c.Cluster.Size != 5 {
		return fmt.Errorf("config: cluster.size must be 1, 3 or 5, got %d", c.Cluster.Size)
	}

	seen := make(map[uint8]bool)
	for _, p := range c.Cluster.Peers {
		if p.ID == 0 || p.ID > 127 {
			return fmt.Errorf("config: peer id must be in 1..127, got %d", p.ID)
		}
		if p.ID == c.Node.ID {
			return fmt.Errorf("config: peer id %d duplicates the local node id", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate peer id %d", p.ID)
		}
		seen[p.ID] = true
		if p.Addr == "" {
			return fmt.Errorf("config: peer %d has no address", p.ID)
		}
	}

	if c.Cluster.Size != 0 && len(c.Cluster.Peers) > int(c.Cluster.Size)-1 {
		return fmt.Errorf("config: %d peers configured for cluster size %d",
			len(c.Cluster.Peers), c.Cluster.Size)
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("config: storage.path is required")
	}

	return nil
}
