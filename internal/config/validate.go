package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"kairos-pkfinder/internal/sqltype"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Discovery.validate(result)
	c.Output.validate(result)
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.Driver) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.driver",
			Message: "driver is required",
			Hint:    "the bundled driver is mysql",
		})
	}

	if strings.TrimSpace(d.DSN) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.dsn",
			Message: "a data source name is required",
			Hint:    "set database.dsn, database.dsn_file or KPK_DATABASE_DSN",
		})
	} else if d.DSNFile != "" && !d.dsnFromFile {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.dsn_file",
			Message: "ignored because database.dsn is set",
		})
	}

	validTLSModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validTLSModes[d.TLS.Mode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.mode",
			Message: fmt.Sprintf("invalid TLS mode %q", d.TLS.Mode),
			Hint:    "valid values are: off, skip-verify, verify-ca, verify-full",
		})
	}
	if (d.TLS.Mode == "verify-ca" || d.TLS.Mode == "verify-full") && d.TLS.CAFile == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.ca_file",
			Message: "no CA file set, the system roots will be used",
		})
	}

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: fmt.Sprintf("max_idle (%d) exceeds max_open (%d)", d.Pool.MaxIdle, d.Pool.MaxOpen),
			Hint:    "database/sql caps idle connections at max_open",
		})
	}
	if d.ConnectionTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_timeout",
			Message: "connection_timeout cannot be negative",
		})
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval must be positive when connection_timeout is set",
		})
	}
}

func (d *DiscoveryConfig) validate(result *ValidationResult) {
	targets := d.Targets()
	if len(targets) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "discovery.tables",
			Message: "at least one table is required",
			Hint:    "pass --discovery.tables ORDERS,APP.CUSTOMERS",
		})
	}

	seen := make(map[TableTarget]bool, len(targets))
	for _, target := range targets {
		if target.Schema == "" {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "discovery.tables",
				Message: fmt.Sprintf("table %q has no schema", target.Table),
				Hint:    "set discovery.schema or qualify the table as schema.table",
			})
		}
		if seen[target] {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "discovery.tables",
				Message: fmt.Sprintf("table %s.%s is listed more than once", target.Schema, target.Table),
			})
		}
		seen[target] = true
	}

	if strings.TrimSpace(d.IndexPattern) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "discovery.index_pattern",
			Message: "index_pattern cannot be empty",
			Hint:    "the Kairos default is _cst_pk%",
		})
	}

	if d.Concurrency < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "discovery.concurrency",
			Message: fmt.Sprintf("concurrency must be at least 1, got %d", d.Concurrency),
		})
	}

	for _, name := range d.AutoIncrementTypes {
		if strings.TrimSpace(name) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "discovery.auto_increment_types",
				Message: "type names cannot be empty",
			})
			break
		}
	}

	if _, err := d.ValueTypeOverrides(); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "discovery.type_overrides",
			Message: err.Error(),
			Hint:    "valid types are: any, bool, short, int, long, float, double, decimal, string, date, time, timestamp, bytes, geometry",
		})
	}
}

// ValueTypeOverrides parses TypeOverrides into value types.
func (d *DiscoveryConfig) ValueTypeOverrides() (map[string]sqltype.ValueType, error) {
	overrides := make(map[string]sqltype.ValueType, len(d.TypeOverrides))
	for name, typeName := range d.TypeOverrides {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("override with empty type name")
		}
		vt, ok := sqltype.Parse(typeName)
		if !ok {
			return nil, fmt.Errorf("unknown value type %q for %s", typeName, name)
		}
		overrides[name] = vt
	}
	return overrides, nil
}

func (o *OutputConfig) validate(result *ValidationResult) {
	validFormats := map[string]bool{"text": true, "json": true, "yaml": true}
	if !validFormats[o.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "output.format",
			Message: fmt.Sprintf("invalid output format %q", o.Format),
			Hint:    "valid values are: text, json, yaml",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is out of range", o.TraceSampleRatio),
			Hint:    "use a value between 0.0 and 1.0",
		})
	}

	if o.SQLCommenterEnabled && !o.TracingEnabled {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "observability.sqlcommenter_enabled",
			Message: "sqlcommenter has no effect without tracing",
			Hint:    "set observability.tracing_enabled to true",
		})
	}

	if o.PushgatewayURL != "" {
		parsed, err := url.Parse(o.PushgatewayURL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "observability.pushgateway_url",
				Message: fmt.Sprintf("invalid pushgateway URL %q", o.PushgatewayURL),
				Hint:    "use a full URL such as http://pushgateway:9091",
			})
		}
		if !o.MetricsEnabled {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "observability.pushgateway_url",
				Message: "ignored because metrics are disabled",
				Hint:    "set observability.metrics_enabled to true",
			})
		}
		if strings.TrimSpace(o.PushJob) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "observability.push_job",
				Message: "push_job is required when pushgateway_url is set",
			})
		}
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".endpoint",
			Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			Hint:    "use host:port or a full URL",
		})
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
