// Package config loads and validates the gateway configuration: a YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true, "ALL": true,
}

// Load reads the YAML file at path over Defaults, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for wiring mistakes that should stop
// startup.
func (c *Config) Validate() error {
	switch c.Broker.Kind {
	case "memory":
		if !c.Topology.Gateway || !c.Topology.Worker {
			return fmt.Errorf("broker kind %q requires both gateway and worker roles in one process", c.Broker.Kind)
		}
	case "nats":
		if c.Broker.URL == "" {
			return fmt.Errorf("broker url is required for kind %q", c.Broker.Kind)
		}
	default:
		return fmt.Errorf("unknown broker kind %q", c.Broker.Kind)
	}

	if !c.Topology.Gateway && !c.Topology.Worker {
		return fmt.Errorf("topology enables neither gateway nor worker role")
	}
	if c.Topology.Copies < 0 {
		return fmt.Errorf("topology copies must not be negative")
	}

	for i, m := range c.Mappings {
		method := strings.ToUpper(m.Method)
		if method == "HEALTH" {
			return fmt.Errorf("mappings[%d]: HEALTH is reserved and never user-routable", i)
		}
		if !knownMethods[method] {
			return fmt.Errorf("mappings[%d]: unknown method %q", i, m.Method)
		}
		if m.Path == "" {
			return fmt.Errorf("mappings[%d]: path is empty", i)
		}
		if m.Queue == "" {
			return fmt.Errorf("mappings[%d]: queue is empty", i)
		}
	}

	if c.Topology.Worker {
		for queue, qc := range c.Queues {
			if qc.Module == "" {
				return fmt.Errorf("queues[%s]: module is empty", queue)
			}
			if qc.Concurrency < 0 {
				return fmt.Errorf("queues[%s]: concurrency must not be negative", queue)
			}
		}
	}

	return nil
}

// QueueNames returns the distinct queue names referenced by the mapping
// table, in first-appearance order.
func (c *Config) QueueNames() []string {
	seen := make(map[string]bool, len(c.Mappings))
	var out []string
	for _, m := range c.Mappings {
		if !seen[m.Queue] {
			seen[m.Queue] = true
			out = append(out, m.Queue)
		}
	}
	return out
}
