package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3128, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Server.Timeout)
	assert.Equal(t, 4096, cfg.Server.BufferSize)
	assert.Equal(t, 2048, cfg.Limits.MaxBodySizeKB)
	assert.Equal(t, "deny", cfg.AccessControl.DefaultAction)
	assert.Empty(t, cfg.AccessControl.Rules)
	assert.Empty(t, cfg.SpecialHosts)

	assert.True(t, cfg.LogFields.RemoteIP)
	assert.True(t, cfg.LogFields.Method)
	assert.True(t, cfg.LogFields.URL)
	assert.True(t, cfg.LogFields.StatusCode)
	assert.True(t, cfg.LogFields.DurationMS)
	assert.False(t, cfg.LogFields.Headers)
	assert.False(t, cfg.LogFields.Body)
	assert.False(t, cfg.LogFields.ResponseHeaders)
	assert.False(t, cfg.LogFields.ResponseBody)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5, cfg.Logging.RotateSizeMB)
	assert.Equal(t, 3, cfg.Logging.RotateBackups)

	assert.False(t, cfg.DNS.Enabled())
	assert.True(t, cfg.Monitoring.Enabled)
	assert.Equal(t, ":9113", cfg.Monitoring.Addr)
}

func TestLoadFullFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 8888
  timeout: 5
  buffer_size: 1024
limits:
  max_body_size_kb: 64
access_control:
  default_action: "allow"
  rules:
    - networks: ["10.0.0.0/8", "not-a-cidr"]
      action: "deny"
      whitelist_file: "wl.txt"
    - networks: ["192.168.0.0/16"]
      action: "allow"
      blacklist_file: "bl.txt"
special_hosts:
  - host: "172.16.10.30"
log_fields:
  remote_ip: false
  response_body: true
logging:
  level: "debug"
  format: "text"
  path: ""
dns:
  servers: ["10.0.0.53:53"]
  timeout: 2
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8888", cfg.ListenAddr())
	assert.Equal(t, 64*1024, cfg.Limits.MaxBodyBytes())

	require.Len(t, cfg.AccessControl.Rules, 2)
	assert.Equal(t, "deny", cfg.AccessControl.Rules[0].Action)
	assert.Equal(t, []string{"10.0.0.0/8", "not-a-cidr"}, cfg.AccessControl.Rules[0].Networks)
	assert.Equal(t, "wl.txt", cfg.AccessControl.Rules[0].WhitelistFile)
	assert.Equal(t, "bl.txt", cfg.AccessControl.Rules[1].BlacklistFile)

	assert.True(t, cfg.IsSpecialHost("172.16.10.30"))
	assert.False(t, cfg.IsSpecialHost("172.16.10.31"))

	assert.False(t, cfg.LogFields.RemoteIP)
	assert.True(t, cfg.LogFields.ResponseBody)
	// Untouched toggles keep their defaults.
	assert.True(t, cfg.LogFields.Method)

	assert.True(t, cfg.DNS.Enabled())
	assert.Equal(t, []string{"10.0.0.53:53"}, cfg.DNS.Servers)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "port out of range",
			content: "server:\n  port: 70000\n",
		},
		{
			name:    "zero buffer size",
			content: "server:\n  buffer_size: 0\n",
		},
		{
			name:    "unknown log level",
			content: "logging:\n  level: \"verbose\"\n",
		},
		{
			name:    "unknown log format",
			content: "logging:\n  format: \"console\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EGRESS_GATE_SERVER_PORT", "9999")

	cfg, err := Load(writeConfig(t, "server:\n  port: 3128\n"))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  timeout: 7\n  shutdown_timeout: 3\ndns:\n  timeout: 2\n  cache_ttl: 60\n"))
	require.NoError(t, err)

	assert.Equal(t, "7s", cfg.Server.ClientTimeout().String())
	assert.Equal(t, "3s", cfg.Server.DrainTimeout().String())
	assert.Equal(t, "2s", cfg.DNS.QueryTimeout().String())
	assert.Equal(t, "1m0s", cfg.DNS.TTL().String())
}
