// Package config provides Viper-based configuration management for egress-gate
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the complete egress-gate configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Limits        LimitsConfig        `mapstructure:"limits"`
	AccessControl AccessControlConfig `mapstructure:"access_control"`
	SpecialHosts  []SpecialHost       `mapstructure:"special_hosts"`
	LogFields     LogFieldsConfig     `mapstructure:"log_fields"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	DNS           DNSConfig           `mapstructure:"dns"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
}

// ServerConfig contains listener and outbound client settings
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port" validate:"min=1,max=65535"`
	Timeout         int    `mapstructure:"timeout" validate:"min=1"`
	BufferSize      int    `mapstructure:"buffer_size" validate:"min=1"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// LimitsConfig contains request size limits
type LimitsConfig struct {
	MaxBodySizeKB int `mapstructure:"max_body_size_kb" validate:"min=1"`
}

// AccessControlConfig contains the ordered ACL rule list and fallback action
type AccessControlConfig struct {
	DefaultAction string       `mapstructure:"default_action"`
	Rules         []AccessRule `mapstructure:"rules"`
}

// AccessRule is one ordered ACL entry. Rule contents are deliberately not
// validated here: unparseable networks are skipped at evaluation setup and
// unknown actions behave as deny, matching the decision semantics.
type AccessRule struct {
	Networks      []string `mapstructure:"networks"`
	Action        string   `mapstructure:"action"`
	WhitelistFile string   `mapstructure:"whitelist_file"`
	BlacklistFile string   `mapstructure:"blacklist_file"`
}

// SpecialHost designates a destination that is raw-forwarded instead of
// going through the HTTP client
type SpecialHost struct {
	Host string `mapstructure:"host"`
}

// LogFieldsConfig toggles which fields access-log events include
type LogFieldsConfig struct {
	RemoteIP        bool `mapstructure:"remote_ip"`
	Method          bool `mapstructure:"method"`
	URL             bool `mapstructure:"url"`
	StatusCode      bool `mapstructure:"status_code"`
	DurationMS      bool `mapstructure:"duration_ms"`
	Headers         bool `mapstructure:"headers"`
	Body            bool `mapstructure:"body"`
	ResponseHeaders bool `mapstructure:"response_headers"`
	ResponseBody    bool `mapstructure:"response_body"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format        string `mapstructure:"format" validate:"oneof=json text"`
	Path          string `mapstructure:"path"`
	RotateSizeMB  int    `mapstructure:"rotate_size_mb" validate:"min=1"`
	RotateBackups int    `mapstructure:"rotate_backups" validate:"min=0"`
}

// DNSConfig contains the optional custom resolver settings; an empty server
// list means the system resolver is used
type DNSConfig struct {
	Servers         []string `mapstructure:"servers"`
	Timeout         int      `mapstructure:"timeout" validate:"min=1"`
	CacheTTL        int      `mapstructure:"cache_ttl" validate:"min=0"`
	MaxCacheEntries int      `mapstructure:"max_cache_entries" validate:"min=1"`
}

// MonitoringConfig contains the ops HTTP server settings
type MonitoringConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads configuration from file and environment variables
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/egress-gate")
	}

	// Environment variables: EGRESS_GATE_SERVER_PORT overrides server.port
	v.SetEnvPrefix("EGRESS_GATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3128)
	v.SetDefault("server.timeout", 20)
	v.SetDefault("server.buffer_size", 4096)
	v.SetDefault("server.shutdown_timeout", 30)

	// Limits defaults
	v.SetDefault("limits.max_body_size_kb", 2048)

	// Access control defaults
	v.SetDefault("access_control.default_action", "deny")

	// Access log field defaults
	v.SetDefault("log_fields.remote_ip", true)
	v.SetDefault("log_fields.method", true)
	v.SetDefault("log_fields.url", true)
	v.SetDefault("log_fields.status_code", true)
	v.SetDefault("log_fields.duration_ms", true)
	v.SetDefault("log_fields.headers", false)
	v.SetDefault("log_fields.body", false)
	v.SetDefault("log_fields.response_headers", false)
	v.SetDefault("log_fields.response_body", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.path", "./logs/egress-gate.log")
	v.SetDefault("logging.rotate_size_mb", 5)
	v.SetDefault("logging.rotate_backups", 3)

	// DNS defaults (resolver disabled until servers are configured)
	v.SetDefault("dns.servers", []string{})
	v.SetDefault("dns.timeout", 5)
	v.SetDefault("dns.cache_ttl", 300)
	v.SetDefault("dns.max_cache_entries", 1000)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.addr", ":9113")
}

// Validate checks the loaded configuration for structurally invalid values
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Monitoring.Enabled && cfg.Monitoring.Addr == "" {
		return fmt.Errorf("monitoring.addr must be set when monitoring is enabled")
	}
	return nil
}

// ListenAddr returns the host:port the proxy listener binds to
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// IsSpecialHost reports whether host is raw-forwarded per the special_hosts table
func (c *Config) IsSpecialHost(host string) bool {
	for _, s := range c.SpecialHosts {
		if s.Host == host {
			return true
		}
	}
	return false
}

// ClientTimeout returns the outbound HTTP client total timeout
func (s ServerConfig) ClientTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// DrainTimeout returns how long shutdown waits for in-flight connections
func (s ServerConfig) DrainTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// MaxBodyBytes returns the request body cap in bytes
func (l LimitsConfig) MaxBodyBytes() int {
	return l.MaxBodySizeKB * 1024
}

// Enabled reports whether the custom resolver should be used
func (d DNSConfig) Enabled() bool {
	return len(d.Servers) > 0
}

// QueryTimeout returns the per-query resolver timeout
func (d DNSConfig) QueryTimeout() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

// TTL returns how long resolved addresses stay cached
func (d DNSConfig) TTL() time.Duration {
	return time.Duration(d.CacheTTL) * time.Second
}
