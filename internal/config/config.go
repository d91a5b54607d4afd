// Package config loads the gateway configuration from a YAML file. The file
// is read once at startup; everything downstream treats the result as
// immutable. Absent keys keep their defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Admission AdmissionConfig `yaml:"admission"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds the HTTP front-end and upstream settings.
type ServerConfig struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// Path is the GraphQL endpoint path.
	Path string `yaml:"path"`

	// Upstream is the URL of the GraphQL executor admitted requests are
	// forwarded to. Required in serve mode.
	Upstream string `yaml:"upstream"`

	// TimeoutStr is the per-request timeout, e.g. "10s".
	TimeoutStr string `yaml:"timeout"`

	// MaxBodyBytes limits the request body size. 0 means unlimited.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// Pretty enables indented JSON responses.
	Pretty bool `yaml:"pretty"`

	// CORSOrigins lists allowed origins. Empty disables CORS.
	CORSOrigins []string `yaml:"cors_origins"`

	timeout time.Duration
}

// Timeout returns the parsed request timeout.
func (c *ServerConfig) Timeout() time.Duration { return c.timeout }

// AdmissionConfig holds the cost model and thresholds.
type AdmissionConfig struct {
	MaxComplexity float64 `yaml:"max_complexity"`
	MaxDepth      int     `yaml:"max_depth"`

	// DefaultCost is charged for fields absent from FieldCosts.
	DefaultCost float64 `yaml:"default_cost"`

	// ScorerCutoff is the scorer's hard recursion cutoff. It bounds the
	// scorer's own cost and must not exceed MaxDepth.
	ScorerCutoff int `yaml:"scorer_cutoff"`

	// DepthCeiling bounds the depth calculator's recursion.
	DepthCeiling int `yaml:"depth_ceiling"`

	FieldCosts map[string]float64 `yaml:"field_costs"`
}

// CacheConfig lists the queries eligible for the shared cache directive.
type CacheConfig struct {
	PublicQueries []string `yaml:"public_queries"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	// OTELEndpoint is the OTLP collector address. Empty disables tracing.
	OTELEndpoint string `yaml:"otel_endpoint"`

	// ServiceName is reported as the OpenTelemetry service name.
	ServiceName string `yaml:"service_name"`

	// MetricsAddr is the Prometheus listen address. Empty disables the
	// metrics endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel is one of debug, info, warn, error. Admission decisions are
	// logged at debug.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			Path:         "/graphql",
			TimeoutStr:   "10s",
			MaxBodyBytes: 1 << 20,
		},
		Admission: AdmissionConfig{
			MaxComplexity: 500,
			MaxDepth:      10,
			DefaultCost:   1,
			ScorerCutoff:  7,
			DepthCeiling:  100,
			FieldCosts: map[string]float64{
				"members":       10,
				"artifacts":     10,
				"subjects":      10,
				"notifications": 5,
				"messages":      5,
				"owner":         5,
				"createdBy":     5,
			},
		},
		Cache: CacheConfig{
			PublicQueries: []string{"checkUsername", "checkEmail", "getInvitePreview"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "gqlgate",
			LogLevel:    "info",
		},
	}
}

// Load reads the file at path over the defaults. An empty path or a missing
// file yields the defaults; malformed YAML or invalid values are errors.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills derived fields and rejects inconsistent values.
func (c *Config) Validate() error {
	if c.Server.Path == "" || c.Server.Path[0] != '/' {
		return fmt.Errorf("server.path must start with /")
	}
	d, err := time.ParseDuration(c.Server.TimeoutStr)
	if err != nil {
		return fmt.Errorf("server.timeout: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("server.timeout must not be negative")
	}
	c.Server.timeout = d

	if c.Admission.MaxComplexity <= 0 {
		return fmt.Errorf("admission.max_complexity must be positive")
	}
	if c.Admission.MaxDepth <= 0 {
		return fmt.Errorf("admission.max_depth must be positive")
	}
	if c.Admission.ScorerCutoff <= 0 {
		return fmt.Errorf("admission.scorer_cutoff must be positive")
	}
	if c.Admission.ScorerCutoff > c.Admission.MaxDepth {
		// Selections past the cutoff score 0, so a cutoff above the depth
		// limit would let unscored subtrees through.
		return fmt.Errorf("admission.scorer_cutoff (%d) must not exceed admission.max_depth (%d)",
			c.Admission.ScorerCutoff, c.Admission.MaxDepth)
	}
	if c.Admission.DepthCeiling <= c.Admission.MaxDepth {
		return fmt.Errorf("admission.depth_ceiling (%d) must exceed admission.max_depth (%d)",
			c.Admission.DepthCeiling, c.Admission.MaxDepth)
	}
	for name, cost := range c.Admission.FieldCosts {
		if cost < 0 {
			return fmt.Errorf("admission.field_costs[%s] must not be negative", name)
		}
	}
	switch c.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.log_level must be one of debug, info, warn, error")
	}
	return nil
}
