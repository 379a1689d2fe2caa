package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobgate/jobgate/internal/config"
)

const validYAML = `
service:
  name: jobgate-test
gateway:
  listen: "127.0.0.1:0"
mappings:
  - method: GET
    path: /echo/:name
    queue: echo
  - method: GET
    path: /system/info
    queue: system
queues:
  echo:
    module: echo
  system:
    module: system
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunCLINoArgs(t *testing.T) {
	assert.Equal(t, 1, runCLI(nil))
}

func TestRunCLIUnknownCommand(t *testing.T) {
	assert.Equal(t, 1, runCLI([]string{"bogus"}))
}

func TestRunCLIVersion(t *testing.T) {
	assert.Equal(t, 0, runCLI([]string{"version"}))
	assert.Equal(t, 0, runCLI([]string{"version", "--json"}))
	assert.Equal(t, 0, runCLI([]string{"--version"}))
}

func TestConfigCheckValid(t *testing.T) {
	path := writeConfigFile(t, validYAML)
	assert.Equal(t, 0, runCLI([]string{"config", "check", "--config", path}))
}

func TestConfigCheckUnknownModule(t *testing.T) {
	path := writeConfigFile(t, validYAML+`  billing:
    module: billing
`)
	assert.Equal(t, 1, runCLI([]string{"config", "check", "--config", path}))
}

func TestConfigCheckMissingFile(t *testing.T) {
	assert.Equal(t, 1, runCLI([]string{"config", "check", "--config", "/nonexistent/jobgate.yaml"}))
}

func TestErrCapacityCoversAllSenders(t *testing.T) {
	cfg := config.Defaults()
	cfg.Queues = map[string]config.QueueConfig{
		"users":  {Module: "users"},
		"orders": {Module: "orders"},
		"mail":   {Module: "mail"},
	}
	cfg.Topology.Copies = 4

	// Three processors, the HTTP server, and three forked-copy waiters may
	// each report one fatal error.
	assert.Equal(t, 7, errCapacity(cfg))

	cfg.Topology.Copies = 1
	assert.Equal(t, 4, errCapacity(cfg))
}
