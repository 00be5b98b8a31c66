package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "basic DSN",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     4000,
				User:     "root",
				Password: "password",
				Database: "test",
			},
			expected: "root:password@tcp(localhost:4000)/test?parseTime=true&loc=UTC",
		},
		{
			name: "with special characters in password",
			config: DatabaseConfig{
				Host:     "db.example.com",
				Port:     3306,
				User:     "admin",
				Password: "p@ss:w0rd!",
				Database: "mydb",
			},
			expected: "admin:p@ss:w0rd!@tcp(db.example.com:3306)/mydb?parseTime=true&loc=UTC",
		},
		{
			name: "empty password",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     4000,
				User:     "root",
				Password: "",
				Database: "test",
			},
			expected: "root:@tcp(localhost:4000)/test?parseTime=true&loc=UTC",
		},
		{
			name: "connection string passthrough",
			config: DatabaseConfig{
				ConnectionString: "root:secret@tcp(10.0.0.1:4000)/app?parseTime=true&loc=UTC",
			},
			expected: "root:secret@tcp(10.0.0.1:4000)/app?parseTime=true&loc=UTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.DSN()
			assert.Equal(t, tt.expected, result)
		})
	}
}

// TestLoad_WithEnvVars tests configuration loading from environment variables
func TestLoad_WithEnvVars(t *testing.T) {
	// Save original env vars
	origHost := os.Getenv("TIREST_DATABASE_HOST")
	origPort := os.Getenv("TIREST_DATABASE_PORT")
	origUser := os.Getenv("TIREST_DATABASE_USER")

	// Clean up after test
	t.Cleanup(func() {
		os.Setenv("TIREST_DATABASE_HOST", origHost)
		os.Setenv("TIREST_DATABASE_PORT", origPort)
		os.Setenv("TIREST_DATABASE_USER", origUser)
		os.Unsetenv("TIREST_DATABASE_PASSWORD")
		os.Unsetenv("TIREST_DATABASE_DATABASE")
		os.Unsetenv("TIREST_SERVER_PORT")
	})

	// Set test environment variables
	os.Setenv("TIREST_DATABASE_HOST", "envhost")
	os.Setenv("TIREST_DATABASE_PORT", "5000")
	os.Setenv("TIREST_DATABASE_USER", "envuser")
	os.Setenv("TIREST_DATABASE_PASSWORD", "envpass")
	os.Setenv("TIREST_DATABASE_DATABASE", "envdb")
	os.Setenv("TIREST_SERVER_PORT", "9999")

	// Verify env var naming convention
	assert.Equal(t, "envhost", os.Getenv("TIREST_DATABASE_HOST"))
	assert.Equal(t, "5000", os.Getenv("TIREST_DATABASE_PORT"))
	assert.Equal(t, "envuser", os.Getenv("TIREST_DATABASE_USER"))
}

// Note: Full integration tests for Load() should be done in integration tests
// because Load() relies on global state (pflag.CommandLine) which is difficult
// to test in isolation without causing conflicts between tests.

func TestConfig_Validate(t *testing.T) {
	// Helper to create a valid base config
	validConfig := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Host:     "localhost",
				Port:     4000,
				User:     "root",
				Database: "test",
				TLS: DatabaseTLSConfig{
					Mode: "off",
				},
				Pool: PoolConfig{
					MaxOpen: 25,
					MaxIdle: 5,
				},
			},
			Server: ServerConfig{
				Port: 8080,
			},
			Rest: RestConfig{
				PageParam:       "page",
				PageSizeParam:   "page_size",
				SortParam:       "sort_by",
				WhereParam:      "where",
				MinPageSize:     1,
				MaxPageSize:     50,
				DefaultPageSize: 20,
				ListEnvelope:    "data",
				MetaEnvelope:    "meta",
				GroupsEnvelope:  "data",
			},
			Observability: ObservabilityConfig{
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
				},
				OTLP: OTLPConfig{
					Protocol:    "grpc",
					Compression: "gzip",
				},
			},
		}
	}

	boolPtr := func(b bool) *bool { return &b }

	todoResource := func() ResourceConfig {
		return ResourceConfig{
			Name: "todo",
			Fields: []FieldConfig{
				{Name: "id", Type: "int", Writable: boolPtr(false)},
				{Name: "title", Type: "string"},
				{Name: "is_completed", Column: "completed", Type: "bool"},
			},
			QueryFields: []string{"title", "is_completed"},
			SortFields:  []string{"id", "title"},
		}
	}

	t.Run("valid config passes validation", func(t *testing.T) {
		cfg := validConfig()
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.Empty(t, result.Errors)
	})

	t.Run("invalid database port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 0
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.port")
	})

	t.Run("invalid database port high", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 70000
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.port")
	})

	t.Run("invalid server port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = -1
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "server.port")
	})

	t.Run("invalid TLS mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.TLS.Mode = "invalid"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.tls.mode")
	})

	t.Run("valid TLS modes", func(t *testing.T) {
		for _, mode := range []string{"", "off", "skip-verify", "verify-ca", "verify-full"} {
			cfg := validConfig()
			if mode == "verify-ca" || mode == "verify-full" {
				cfg.Database.TLS.CAFile = "/path/to/ca.pem"
			}
			cfg.Database.TLS.Mode = mode
			result := cfg.Validate()
			assert.False(t, result.HasErrors(), "TLS mode %q should be valid", mode)
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.Logging.Level = "invalid"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "observability.logging.level")
	})

	t.Run("invalid log format", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.Logging.Format = "xml"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "observability.logging.format")
	})

	t.Run("invalid OTLP protocol", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.OTLP.Protocol = "http"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "observability.otlp.protocol")
	})

	t.Run("invalid OTLP http/protobuf endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.OTLP.Protocol = "http/protobuf"
		cfg.Observability.OTLP.Endpoint = "localhost"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "observability.otlp.endpoint")
	})

	t.Run("valid OTLP http/protobuf endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.OTLP.Protocol = "http/protobuf"
		cfg.Observability.OTLP.Endpoint = "localhost:4318"
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
	})

	t.Run("rate limit enabled without RPS", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.RateLimitEnabled = true
		cfg.Server.RateLimitRPS = 0
		cfg.Server.RateLimitBurst = 10
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "rate_limit_rps")
	})

	t.Run("rate limit enabled without burst", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.RateLimitEnabled = true
		cfg.Server.RateLimitRPS = 100
		cfg.Server.RateLimitBurst = 0
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "rate_limit_burst")
	})

	t.Run("rate limit disabled with values warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.RateLimitEnabled = false
		cfg.Server.RateLimitRPS = 100
		cfg.Server.RateLimitBurst = 10
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0].Message, "rate limit values")
	})

	t.Run("CORS enabled without origins", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.CORSEnabled = true
		cfg.Server.CORSAllowedOrigins = []string{}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "cors_allowed_origins")
	})

	t.Run("CORS wildcard with credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.CORSEnabled = true
		cfg.Server.CORSAllowedOrigins = []string{"*"}
		cfg.Server.CORSAllowCredentials = true
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "wildcard")
	})

	t.Run("CORS wildcard without credentials warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.CORSEnabled = true
		cfg.Server.CORSAllowedOrigins = []string{"*"}
		cfg.Server.CORSAllowCredentials = false
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0].Message, "wildcard")
	})

	t.Run("page size bounds inverted", func(t *testing.T) {
		cfg := validConfig()
		cfg.Rest.MinPageSize = 10
		cfg.Rest.MaxPageSize = 5
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "rest.max_page_size")
	})

	t.Run("default page size outside bounds", func(t *testing.T) {
		cfg := validConfig()
		cfg.Rest.DefaultPageSize = 100
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "rest.default_page_size")
	})

	t.Run("empty parameter name", func(t *testing.T) {
		cfg := validConfig()
		cfg.Rest.WhereParam = ""
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "rest.where_param")
	})

	t.Run("envelope_on_parse requires single envelope", func(t *testing.T) {
		cfg := validConfig()
		cfg.Rest.EnvelopeOnParse = true
		cfg.Rest.SingleEnvelope = ""
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "envelope_on_parse")
	})

	t.Run("valid resource passes", func(t *testing.T) {
		cfg := validConfig()
		cfg.Resources = []ResourceConfig{todoResource()}
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
	})

	t.Run("resource without fields", func(t *testing.T) {
		cfg := validConfig()
		r := todoResource()
		r.Fields = nil
		cfg.Resources = []ResourceConfig{r}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "resources[0].fields")
	})

	t.Run("resource with unknown field type", func(t *testing.T) {
		cfg := validConfig()
		r := todoResource()
		r.Fields[1].Type = "blob"
		cfg.Resources = []ResourceConfig{r}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "resources[0].fields[1].type")
	})

	t.Run("resource primary key must be declared", func(t *testing.T) {
		cfg := validConfig()
		r := todoResource()
		r.PrimaryKey = "uuid"
		cfg.Resources = []ResourceConfig{r}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "resources[0].primary_key")
	})

	t.Run("duplicate resource names", func(t *testing.T) {
		cfg := validConfig()
		cfg.Resources = []ResourceConfig{todoResource(), todoResource()}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "duplicate resource name")
	})

	t.Run("allow-list references unknown field", func(t *testing.T) {
		cfg := validConfig()
		r := todoResource()
		r.QueryFields = append(r.QueryFields, "priority")
		cfg.Resources = []ResourceConfig{r}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "resources[0].query_fields")
	})

	t.Run("default sort references unknown field", func(t *testing.T) {
		cfg := validConfig()
		r := todoResource()
		r.DefaultSort = "-priority"
		cfg.Resources = []ResourceConfig{r}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "resources[0].default_sort")
	})

	t.Run("unknown operation name", func(t *testing.T) {
		cfg := validConfig()
		r := todoResource()
		r.Enabled = []string{"index", "browse"}
		cfg.Resources = []ResourceConfig{r}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), `unknown operation "browse"`)
	})

	t.Run("base path must start with slash", func(t *testing.T) {
		cfg := validConfig()
		r := todoResource()
		r.BasePath = "todos"
		cfg.Resources = []ResourceConfig{r}
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "resources[0].base_path")
	})

	t.Run("max_idle greater than max_open warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Pool.MaxOpen = 10
		cfg.Database.Pool.MaxIdle = 20
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0].Message, "max_idle")
	})

	t.Run("multiple errors collected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 0
		cfg.Server.Port = 0
		cfg.Observability.Logging.Level = "invalid"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Len(t, result.Errors, 3)
	})
}

func TestValidationError_Error(t *testing.T) {
	t.Run("with hint", func(t *testing.T) {
		err := ValidationError{
			Field:   "test.field",
			Message: "test message",
			Hint:    "try this",
		}
		assert.Equal(t, "test.field: test message (hint: try this)", err.Error())
	})

	t.Run("without hint", func(t *testing.T) {
		err := ValidationError{
			Field:   "test.field",
			Message: "test message",
		}
		assert.Equal(t, "test.field: test message", err.Error())
	})
}
