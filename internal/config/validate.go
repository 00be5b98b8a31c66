package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"tidb-rest/internal/entity"
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

	// Validate database config
	c.Database.validate(result)

	// Validate server config
	c.Server.validate(result)

	// Validate collection-wide REST settings
	c.Rest.validate(result)

	// Validate configured resources
	validateResources(result, c.Resources)

	// Validate observability config
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.MyCnfFile) != "" && (strings.TrimSpace(d.ConnectionString) != "" || strings.TrimSpace(d.ConnectionStringFile) != "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.mycnf_file",
			Message: "mycnf_file is mutually exclusive with dsn/dsn_file",
			Hint:    "set either mycnf_file or dsn/dsn_file, not both",
		})
	}

	if strings.TrimSpace(d.MyCnfFile) != "" {
		settings, err := parseMyCnfFile(d.MyCnfFile)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.mycnf_file",
				Message: fmt.Sprintf("failed to parse my.cnf file: %v", err),
				Hint:    "provide a valid MySQL defaults file with [client] settings",
			})
		} else {
			if d.Host == "" && settings.Host != "" {
				d.Host = settings.Host
			}
			if d.Port == 0 && settings.HasPort {
				d.Port = settings.Port
			}
			if d.User == "" && settings.User != "" {
				d.User = settings.User
			}
			if d.Password == "" && settings.Password != "" {
				d.Password = settings.Password
			}
			if d.TLS.Mode == "" && settings.TLSMode != "" {
				d.TLS.Mode = settings.TLSMode
			}
			if settings.HasDBName {
				if strings.TrimSpace(d.Database) == "" {
					d.Database = settings.Database
				} else if d.Database != settings.Database {
					result.Errors = append(result.Errors, ValidationError{
						Field:   "database.database",
						Message: fmt.Sprintf("database mismatch: database.database=%q but database.mycnf_file targets %q", d.Database, settings.Database),
						Hint:    "either remove database.database or set it to match my.cnf database",
					})
				}
			}
		}
	}

	// Port range validation (only if not using connection string)
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
		})
	}

	// Validate TLS configuration
	d.TLS.validate(result)

	// Connection pool validation
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
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: "max_idle is greater than max_open",
			Hint:    "idle connections will be limited to max_open",
		})
	}

	// Connection retry validation
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval is greater than connection_timeout",
			Hint:    "only one connection attempt will be made",
		})
	}
	if d.ConnectionRetryInterval < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval cannot be negative",
		})
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval must be greater than 0 when connection_timeout is set",
			Hint:    "set a retry interval such as 2s, or set connection_timeout to 0 to disable retries",
		})
	}
	if d.ConnectionTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_timeout",
			Message: "connection_timeout cannot be negative",
		})
	}

	effectiveDatabase, _, err := resolveEffectiveDatabaseName(d.Database, d.ConnectionString, d.MyCnfFile)
	if err != nil {
		switch {
		case strings.HasPrefix(err.Error(), "database.dsn"):
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.dsn",
				Message: err.Error(),
				Hint:    "set a valid MySQL DSN in database.dsn/database.dsn_file",
			})
		case strings.HasPrefix(err.Error(), "database.mycnf_file"):
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.mycnf_file",
				Message: err.Error(),
				Hint:    "set a valid my.cnf file and include [client] database or database.database",
			})
		case strings.Contains(err.Error(), "mismatch"):
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.database",
				Message: err.Error(),
				Hint:    "either remove database.database or set it to match the DSN/my.cnf database",
			})
		default:
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.database",
				Message: err.Error(),
				Hint:    "set database.database or include a /database in database.dsn/database.dsn_file or database.mycnf_file",
			})
		}
		return
	}

	// Keep runtime behavior deterministic for callers that consume Database.Database.
	d.Database = effectiveDatabase
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	// Mode validation
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.mode",
			Message: fmt.Sprintf("invalid TLS mode %q", t.Mode),
			Hint:    "valid values are: off, skip-verify, verify-ca, verify-full",
		})
	}

	// CA file is required for verify-ca and verify-full
	caFile := t.resolveFile(t.CAFileEnv, t.CAFile)
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && caFile == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.ca_file",
			Message: "CA file is required for verify-ca and verify-full modes",
			Hint:    "set ca_file or ca_file_env to specify the CA certificate",
		})
	}

	// Client cert and key must both be specified or neither
	certFile := t.resolveFile(t.CertFileEnv, t.CertFile)
	keyFile := t.resolveFile(t.KeyFileEnv, t.KeyFile)
	if (certFile != "" && keyFile == "") || (certFile == "" && keyFile != "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.cert_file",
			Message: "both cert_file and key_file must be specified for client certificate authentication",
			Hint:    "provide both cert_file and key_file, or neither",
		})
	}

	if t.Mode == "skip-verify" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.mode",
			Message: "skip-verify mode does not verify server certificates",
			Hint:    "use verify-ca or verify-full in production",
		})
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	// Port range validation
	if s.Port < 1 || s.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port),
		})
	}

	// Rate limit validation
	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.rate_limit_rps",
				Message: "rate_limit_rps must be greater than 0 when rate limiting is enabled",
			})
		}
		if s.RateLimitBurst <= 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.rate_limit_burst",
				Message: "rate_limit_burst must be greater than 0 when rate limiting is enabled",
			})
		}
	}

	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "server.rate_limit_enabled",
			Message: "rate limit values are set but rate limiting is disabled",
			Hint:    "enable server.rate_limit_enabled to apply rate limits",
		})
	}

	// CORS validation
	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.cors_allowed_origins",
				Message: "CORS enabled but no allowed origins configured",
				Hint:    "set cors_allowed_origins or disable CORS",
			})
		}

		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}

		if hasWildcard && s.CORSAllowCredentials {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.cors_allowed_origins",
				Message: "wildcard origin (*) cannot be used with credentials",
				Hint:    "use specific origins with credentials, or wildcard without credentials",
			})
		}

		if hasWildcard {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "server.cors_allowed_origins",
				Message: "CORS wildcard origin enabled",
				Hint:    "use specific origins in production for better security",
			})
		}
	}
}

func (r *RestConfig) validate(result *ValidationResult) {
	params := map[string]string{
		"rest.page_param":      r.PageParam,
		"rest.page_size_param": r.PageSizeParam,
		"rest.sort_param":      r.SortParam,
		"rest.where_param":     r.WhereParam,
	}
	for field, value := range params {
		if strings.TrimSpace(value) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "query parameter name cannot be empty",
			})
		}
	}

	if r.MinPageSize < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "rest.min_page_size",
			Message: "min_page_size must be at least 1",
		})
	}
	if r.MaxPageSize < r.MinPageSize {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "rest.max_page_size",
			Message: fmt.Sprintf("max_page_size %d is smaller than min_page_size %d", r.MaxPageSize, r.MinPageSize),
		})
	}
	if r.DefaultPageSize < r.MinPageSize || r.DefaultPageSize > r.MaxPageSize {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "rest.default_page_size",
			Message: fmt.Sprintf("default_page_size %d is outside [%d, %d]", r.DefaultPageSize, r.MinPageSize, r.MaxPageSize),
			Hint:    "pick a default between min_page_size and max_page_size",
		})
	}

	if r.EnvelopeOnParse && strings.TrimSpace(r.SingleEnvelope) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "rest.envelope_on_parse",
			Message: "envelope_on_parse requires a non-empty single_envelope key",
		})
	}
}

var validResourceOperations = map[string]bool{
	"index":  true,
	"read":   true,
	"create": true,
	"update": true,
	"delete": true,
	"group":  true,
	"stats":  true,
	"sample": true,
}

func validateResources(result *ValidationResult, resources []ResourceConfig) {
	seen := map[string]bool{}
	for i := range resources {
		r := &resources[i]
		prefix := fmt.Sprintf("resources[%d]", i)
		if strings.TrimSpace(r.Name) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".name",
				Message: "resource name cannot be empty",
			})
			continue
		}
		if seen[r.Name] {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate resource name %q", r.Name),
			})
			continue
		}
		seen[r.Name] = true
		r.validate(result, prefix)
	}
}

func (r *ResourceConfig) validate(result *ValidationResult, prefix string) {
	if len(r.Fields) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".fields",
			Message: fmt.Sprintf("resource %q declares no fields", r.Name),
			Hint:    "declare at least the primary key field",
		})
		return
	}

	known := map[string]bool{}
	for j, f := range r.Fields {
		fieldPrefix := fmt.Sprintf("%s.fields[%d]", prefix, j)
		name := strings.TrimSpace(f.Name)
		if name == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fieldPrefix + ".name",
				Message: "field name cannot be empty",
			})
			continue
		}
		if known[name] {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fieldPrefix + ".name",
				Message: fmt.Sprintf("duplicate field %q in resource %q", name, r.Name),
			})
			continue
		}
		known[name] = true

		if f.Type != "" {
			if _, err := entity.ParseFieldType(f.Type); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Field:   fieldPrefix + ".type",
					Message: err.Error(),
					Hint:    "valid types are: string, int, float, bool, time, date, json, geometry",
				})
			}
		}
	}

	primaryKey := strings.TrimSpace(r.PrimaryKey)
	if primaryKey == "" {
		primaryKey = "id"
	}
	if !known[primaryKey] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".primary_key",
			Message: fmt.Sprintf("primary key %q is not a declared field of resource %q", primaryKey, r.Name),
		})
	}

	if r.BasePath != "" && !strings.HasPrefix(r.BasePath, "/") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".base_path",
			Message: fmt.Sprintf("base path %q must start with /", r.BasePath),
		})
	}

	validateFieldList(result, prefix+".query_fields", r.QueryFields, known)
	validateFieldList(result, prefix+".sort_fields", r.SortFields, known)
	validateFieldList(result, prefix+".group_fields", r.GroupFields, known)
	validateFieldList(result, prefix+".stats_fields", r.StatsFields, known)

	if r.DefaultSort != "" {
		for _, clause := range strings.Split(r.DefaultSort, ",") {
			field := strings.TrimPrefix(strings.TrimSpace(clause), "-")
			if field == "" || !known[field] {
				result.Errors = append(result.Errors, ValidationError{
					Field:   prefix + ".default_sort",
					Message: fmt.Sprintf("default sort references unknown field %q", field),
				})
			}
		}
	}

	for _, op := range r.Enabled {
		if !validResourceOperations[strings.TrimSpace(op)] {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".enabled",
				Message: fmt.Sprintf("unknown operation %q", op),
				Hint:    "valid operations are: index, read, create, update, delete, group, stats, sample",
			})
		}
	}
}

func validateFieldList(result *ValidationResult, field string, names []string, known map[string]bool) {
	for _, name := range names {
		if !known[strings.TrimSpace(name)] {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown field %q", name),
			})
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	// Log level validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	// Log format validation
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	// OTLP protocol validation
	o.OTLP.validate("observability.otlp", result)

	// Signal-specific OTLP validation
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.Metrics.validate("observability.metrics", result)
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

	if o.Protocol == "http/protobuf" {
		if !validOTLPEndpoint(o.Endpoint) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".endpoint",
				Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
				Hint:    "use host:port or a full URL",
			})
		}
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
