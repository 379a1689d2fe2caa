package config

import "time"

// Config represents the complete jobgate configuration.
type Config struct {
	Service  ServiceConfig          `yaml:"service"`
	Gateway  GatewayConfig          `yaml:"gateway,omitempty"`
	Broker   BrokerConfig           `yaml:"broker"`
	State    StateConfig            `yaml:"state"`
	Topology TopologyConfig         `yaml:"topology"`
	Mappings []Mapping              `yaml:"mappings,omitempty"`
	Queues   map[string]QueueConfig `yaml:"queues,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name       string `yaml:"name" envconfig:"JOBGATE_SERVICE_NAME"`
	LogLevel   string `yaml:"log_level" envconfig:"JOBGATE_LOG_LEVEL"`
	Production bool   `yaml:"production" envconfig:"JOBGATE_PRODUCTION"`
}

// GatewayConfig defines the dispatcher-side HTTP settings.
type GatewayConfig struct {
	Listen string `yaml:"listen" envconfig:"JOBGATE_LISTEN"`
	// Timeout bounds every dispatched request (default 30s).
	Timeout time.Duration `yaml:"timeout" envconfig:"JOBGATE_TIMEOUT"`
	// DefaultCache is applied to every response unless overridden downstream.
	DefaultCache *CacheConfig  `yaml:"default_cache,omitempty"`
	Auth         APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines gateway authentication settings.
type APIAuthConfig struct {
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// CacheConfig mirrors the response-cache directives in configuration.
type CacheConfig struct {
	Private bool `yaml:"private,omitempty"`
	NoCache bool `yaml:"no_cache,omitempty"`
	NoStore bool `yaml:"no_store,omitempty"`
	MaxAge  int  `yaml:"max_age,omitempty"`
}

// BrokerConfig selects and configures the job queue medium.
type BrokerConfig struct {
	// Kind is "memory" (single process) or "nats".
	Kind   string `yaml:"kind" envconfig:"JOBGATE_BROKER_KIND"`
	URL    string `yaml:"url" envconfig:"JOBGATE_BROKER_URL"`
	Prefix string `yaml:"prefix" envconfig:"JOBGATE_BROKER_PREFIX"`
}

// StateConfig defines worker-side storage settings.
type StateConfig struct {
	Path string `yaml:"path" envconfig:"JOBGATE_STATE_PATH"`
}

// TopologyConfig defines which roles this process runs and how many
// OS-level worker copies to fork.
type TopologyConfig struct {
	Gateway bool `yaml:"gateway"`
	Worker  bool `yaml:"worker"`
	// Copies is the total number of worker OS processes (default 1).
	Copies int `yaml:"copies,omitempty"`
}

// Mapping pairs an HTTP method and path pattern with a target queue.
// The sequence is ordered; the first matching entry wins.
type Mapping struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
	Queue  string `yaml:"queue"`
	// Plugins names ingress pipeline hooks enabled for this route.
	Plugins []string `yaml:"plugins,omitempty"`
	// Pre and Post name request/response transform hooks.
	Pre  string `yaml:"pre,omitempty"`
	Post string `yaml:"post,omitempty"`
}

// QueueConfig defines one worker queue binding.
type QueueConfig struct {
	// Module names the route-table module served on this queue.
	Module string `yaml:"module"`
	// Concurrency is the number of jobs processed at once (default 1).
	Concurrency int `yaml:"concurrency,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "jobgate",
			LogLevel: "info",
		},
		Gateway: GatewayConfig{
			Listen:  "127.0.0.1:8080",
			Timeout: 30 * time.Second,
		},
		Broker: BrokerConfig{
			Kind:   "memory",
			URL:    "nats://127.0.0.1:4222",
			Prefix: "jobgate",
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		Topology: TopologyConfig{
			Gateway: true,
			Worker:  true,
			Copies:  1,
		},
		Queues: make(map[string]QueueConfig),
	}
}
