package config

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// MappingHash computes the BLAKE3 hash of the canonical mapping table.
// Logged at startup so operators can tell at a glance whether two processes
// run the same routing configuration.
func (c *Config) MappingHash() (string, error) {
	data, err := yaml.Marshal(c.Mappings)
	if err != nil {
		return "", fmt.Errorf("marshal mappings: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
