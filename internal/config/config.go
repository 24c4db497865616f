// Package config loads and validates the gateway's YAML configuration.
//
// DESIGN: All required operational fields (server port/timeouts) MUST
// come from the config file — no silent defaults for those. Optional
// knobs (admission queue sizes, rate limit, body/stream limits) carry sane
// defaults the way spec.md §3's tool-loop settings do.
//
// FILES:
//   - config.go: root Config struct, Load/LoadFromBytes, Validate
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the LLM gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Admission AdmissionConfig `yaml:"admission"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	Registry  RegistryConfig  `yaml:"registry"`
	Logging   LoggerConfig    `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings (spec.md §4.12).
type ServerConfig struct {
	Port                int           `yaml:"port"`
	ReadTimeout         time.Duration `yaml:"readTimeout"`
	WriteTimeout        time.Duration `yaml:"writeTimeout"`
	MaxBodyBytes        int64         `yaml:"maxBodyBytes"`        // 413 over this (§4.12 step 7)
	BodyReadTimeout     time.Duration `yaml:"bodyReadTimeout"`     // 408 over this
	RequestTimeout      time.Duration `yaml:"requestTimeout"`      // 504 over this (§5 "absolute wall-clock")
	StreamIdleTimeout   time.Duration `yaml:"streamIdleTimeout"`   // SSE idle timeout (§4.12, §8)
}

// AdmissionConfig configures the five named concurrency limiters
// (spec.md §4.12 step 6: llmRun, llmStream, vectorRun, vectorStream,
// embeddingRun).
type AdmissionConfig struct {
	LLMRunConcurrency       int           `yaml:"llmRunConcurrency"`
	LLMStreamConcurrency    int           `yaml:"llmStreamConcurrency"`
	VectorRunConcurrency    int           `yaml:"vectorRunConcurrency"`
	VectorStreamConcurrency int           `yaml:"vectorStreamConcurrency"`
	EmbeddingRunConcurrency int           `yaml:"embeddingRunConcurrency"`
	QueueSize               int           `yaml:"queueSize"`
	QueueTimeout            time.Duration `yaml:"queueTimeout"`
}

// RateLimitConfig configures the per-key token bucket (spec.md §4.12
// step 4, §5 "Shared resources").
type RateLimitConfig struct {
	Enabled        bool          `yaml:"enabled"`
	RequestsPerSec int           `yaml:"requestsPerSec"`
	Burst          int           `yaml:"burst"`
	EvictAfter     time.Duration `yaml:"evictAfter"`
}

// AuthConfig configures optional request authentication (spec.md §4.12
// step 3). When Enabled is false, every request is admitted and the
// client IP is used as the rate-limit key.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKeys []string `yaml:"apiKeys"`
}

// CORSConfig configures allowed origins for browser clients.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// RegistryConfig points at the plugin manifest directory loaded lazily
// by internal/registry (spec.md §4.11).
type RegistryConfig struct {
	PluginsDir string `yaml:"pluginsDir"`
}

// LoggerConfig configures the process-wide zerolog logger.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// TelemetryConfig configures the per-category log sinks described in
// spec.md §6 ("Filesystem layout (logging sink)") and the request
// trajectory log.
type TelemetryConfig struct {
	Enabled          bool   `yaml:"enabled"`
	LogDir           string `yaml:"logDir"` // base "logs/" directory
	MaxFiles         int    `yaml:"maxFiles"`
	MaxAgeDays       int    `yaml:"maxAgeDays"`
	DisableFileLogs  bool   `yaml:"disableFileLogs"`
	DisableConsole   bool   `yaml:"disableConsoleLogs"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands ${VAR} and ${VAR:-default} references.
func expandEnvWithDefaults(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// ExpandEnvWithDefaults is exported for manifest loading in internal/registry.
func ExpandEnvWithDefaults(s string) string { return expandEnvWithDefaults(s) }

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes, expanding env
// vars, applying defaults for optional knobs, and validating.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets LLM_ADAPTER_DISABLE_FILE_LOGS=1 and
// LLM_ADAPTER_DISABLE_CONSOLE_LOGS=1 switch off the file and console log
// sinks without editing the config file. No other environment variable is
// read here.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LLM_ADAPTER_DISABLE_FILE_LOGS"); v == "1" {
		c.Telemetry.DisableFileLogs = true
	}
	if v := os.Getenv("LLM_ADAPTER_DISABLE_CONSOLE_LOGS"); v == "1" {
		c.Telemetry.DisableConsole = true
	}
}

func (c *Config) applyDefaults() {
	if c.Admission.LLMRunConcurrency == 0 {
		c.Admission.LLMRunConcurrency = 16
	}
	if c.Admission.LLMStreamConcurrency == 0 {
		c.Admission.LLMStreamConcurrency = 16
	}
	if c.Admission.VectorRunConcurrency == 0 {
		c.Admission.VectorRunConcurrency = 8
	}
	if c.Admission.VectorStreamConcurrency == 0 {
		c.Admission.VectorStreamConcurrency = 8
	}
	if c.Admission.EmbeddingRunConcurrency == 0 {
		c.Admission.EmbeddingRunConcurrency = 8
	}
	if c.Admission.QueueSize == 0 {
		c.Admission.QueueSize = 64
	}
	if c.Admission.QueueTimeout == 0 {
		c.Admission.QueueTimeout = 5 * time.Second
	}
	if c.RateLimit.RequestsPerSec == 0 {
		c.RateLimit.RequestsPerSec = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerSec
	}
	if c.RateLimit.EvictAfter == 0 {
		c.RateLimit.EvictAfter = 10 * time.Minute
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 10 << 20
	}
	if c.Server.BodyReadTimeout == 0 {
		c.Server.BodyReadTimeout = 10 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 120 * time.Second
	}
	if c.Server.StreamIdleTimeout == 0 {
		c.Server.StreamIdleTimeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Telemetry.LogDir == "" {
		c.Telemetry.LogDir = "logs"
	}
	if c.Telemetry.MaxFiles == 0 {
		c.Telemetry.MaxFiles = 20
	}
	if c.Telemetry.MaxAgeDays == 0 {
		c.Telemetry.MaxAgeDays = 14
	}
}

// Validate checks required operational fields are present and sane.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.readTimeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.writeTimeout is required")
	}
	if c.Registry.PluginsDir == "" {
		return fmt.Errorf("registry.pluginsDir is required")
	}
	return nil
}
