package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
service:
  name: jobgate-test
  log_level: debug
gateway:
  listen: "127.0.0.1:9090"
  timeout: 10s
  default_cache:
    private: true
    max_age: 300
broker:
  kind: nats
  url: nats://127.0.0.1:4222
state:
  path: ./data/test.db
topology:
  gateway: true
  worker: false
mappings:
  - method: GET
    path: /users/:id
    queue: users
    plugins: [auth]
  - method: POST
    path: /orders
    queue: orders
    pre: sign-request
  - method: ALL
    path: /users/:id/orders
    queue: orders
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "jobgate-test", cfg.Service.Name)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	require.NotNil(t, cfg.Gateway.DefaultCache)
	assert.True(t, cfg.Gateway.DefaultCache.Private)
	assert.Equal(t, 300, cfg.Gateway.DefaultCache.MaxAge)
	assert.Equal(t, "nats", cfg.Broker.Kind)

	require.Len(t, cfg.Mappings, 3)
	assert.Equal(t, []string{"auth"}, cfg.Mappings[0].Plugins)
	assert.Equal(t, "sign-request", cfg.Mappings[1].Pre)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "service:\n  name: minimal\n"))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout, "default dispatch timeout")
	assert.Equal(t, "memory", cfg.Broker.Kind)
	assert.True(t, cfg.Topology.Gateway)
	assert.True(t, cfg.Topology.Worker)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("JOBGATE_LOG_LEVEL", "error")
	t.Setenv("JOBGATE_BROKER_URL", "nats://10.0.0.5:4222")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Service.LogLevel)
	assert.Equal(t, "nats://10.0.0.5:4222", cfg.Broker.URL)
}

func TestValidateRejectsHealthMapping(t *testing.T) {
	cfg := Defaults()
	cfg.Mappings = []Mapping{{Method: "HEALTH", Path: "/probe", Queue: "users"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestValidateRejectsUnknownMethod(t *testing.T) {
	cfg := Defaults()
	cfg.Mappings = []Mapping{{Method: "FETCH", Path: "/x", Queue: "q"}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMemoryBrokerSplitRoles(t *testing.T) {
	cfg := Defaults()
	cfg.Topology.Worker = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory")
}

func TestValidateRejectsEmptyQueueModule(t *testing.T) {
	cfg := Defaults()
	cfg.Queues["users"] = QueueConfig{}
	assert.Error(t, cfg.Validate())
}

func TestQueueNamesDistinctOrdered(t *testing.T) {
	cfg := Defaults()
	cfg.Mappings = []Mapping{
		{Method: "GET", Path: "/users/:id", Queue: "users"},
		{Method: "POST", Path: "/orders", Queue: "orders"},
		{Method: "GET", Path: "/users", Queue: "users"},
	}
	assert.Equal(t, []string{"users", "orders"}, cfg.QueueNames())
}

func TestMappingHashStable(t *testing.T) {
	cfg1, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	cfg2, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	h1, err := cfg1.MappingHash()
	require.NoError(t, err)
	h2, err := cfg2.MappingHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	cfg2.Mappings[0].Queue = "other"
	h3, err := cfg2.MappingHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
