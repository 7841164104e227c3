// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Discovery     DiscoveryConfig     `mapstructure:"discovery"`
	Output        OutputConfig        `mapstructure:"output"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig holds TLS settings applied to mysql driver connections.
type DatabaseTLSConfig struct {
	// Mode controls TLS behavior:
	//   - "": leave the DSN tls parameter untouched
	//   - "off": No TLS (plaintext connection)
	//   - "skip-verify": TLS without server certificate verification (insecure)
	//   - "verify-ca": TLS with CA verification but no hostname check
	//   - "verify-full": TLS with full verification including hostname
	Mode       string `mapstructure:"mode"`
	CAFile     string `mapstructure:"ca_file"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// Driver is the database/sql driver name the DSN is opened with.
	Driver string `mapstructure:"driver"`
	// DSN is a complete driver specific Data Source Name.
	// Configured via "dsn" in YAML or KPK_DATABASE_DSN env var.
	DSN string `mapstructure:"dsn"`
	// DSNFile is a path to a file containing the DSN (for secrets management).
	// Supports "@-" to read from stdin.
	DSNFile string `mapstructure:"dsn_file"`

	// Password replaces the password embedded in the DSN when set.
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the database on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`

	// dsnFromFile is set by Load when DSN was read from DSNFile.
	dsnFromFile bool
}

// DiscoveryConfig controls which tables are resolved and how key columns are classified.
type DiscoveryConfig struct {
	// Schema is the owner used for table entries without a schema prefix.
	Schema string `mapstructure:"schema"`
	// Tables lists tables to resolve, either "table" or "schema.table".
	Tables []string `mapstructure:"tables"`
	// IndexPattern is the LIKE pattern primary key indexes are named with.
	IndexPattern string `mapstructure:"index_pattern"`
	// Concurrency bounds how many tables are resolved at once.
	Concurrency int `mapstructure:"concurrency"`
	// AutoIncrementTypes are result column type names treated as database generated.
	AutoIncrementTypes []string `mapstructure:"auto_increment_types"`
	// TypeOverrides maps vendor type names to value type names (int, long, string, ...).
	TypeOverrides map[string]string `mapstructure:"type_overrides"`
}

// TableTarget is one table to resolve.
type TableTarget struct {
	Schema string
	Table  string
}

// Targets splits Tables into schema and table pairs, applying Schema to
// unqualified entries. Blank entries are dropped.
func (d DiscoveryConfig) Targets() []TableTarget {
	targets := make([]TableTarget, 0, len(d.Tables))
	for _, entry := range d.Tables {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		schema, table := d.Schema, entry
		if idx := strings.LastIndex(entry, "."); idx > 0 && idx < len(entry)-1 {
			schema, table = entry[:idx], entry[idx+1:]
		}
		targets = append(targets, TableTarget{Schema: schema, Table: table})
	}
	return targets
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Format string `mapstructure:"format"` // text, json, yaml
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	ServiceVersion      string        `mapstructure:"service_version"`
	Environment         string        `mapstructure:"environment"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	TracingEnabled      bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64       `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool          `mapstructure:"sqlcommenter_enabled"` // Inject trace context into SQL queries
	Logging             LoggingConfig `mapstructure:"logging"`

	// PushgatewayURL receives the discovery metrics when the run finishes.
	// Empty disables the push.
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	PushJob        string `mapstructure:"push_job"`

	// Global OTLP settings (defaults for all signals)
	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// GetTracesConfig returns the effective OTLP config for traces
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// GetLogsConfig returns the effective OTLP config for logs
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// mergeOTLPConfigs merges signal-specific config over global defaults
func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	result := base

	if override.Endpoint != "" {
		result.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	// Insecure cannot distinguish unset from false; a present override section wins.
	result.Insecure = override.Insecure

	if override.TLSCertFile != "" {
		result.TLSCertFile = override.TLSCertFile
	}
	if override.TLSClientCertFile != "" {
		result.TLSClientCertFile = override.TLSClientCertFile
	}
	if override.TLSClientKeyFile != "" {
		result.TLSClientKeyFile = override.TLSClientKeyFile
	}

	if override.Headers != nil {
		result.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			result.Headers[k] = v
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}

	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Compression != "" {
		result.Compression = override.Compression
	}
	if override.RetryMaxAttempts != 0 {
		result.RetryEnabled = override.RetryEnabled
		result.RetryMaxAttempts = override.RetryMaxAttempts
	}

	return result
}
