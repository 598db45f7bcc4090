// Package config provides configuration management for the Vitsa chat relay.
// A Config is built once at process start (defaults, then an optional YAML
// file, then environment overrides) and is never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read on top of the YAML configuration.
const (
	EnvPort     = "PORT"
	EnvAPIKey   = "DEEPSEEK_API_KEY"
	EnvEndpoint = "DEEPSEEK_API_URL"
	EnvLogLevel = "VITSA_LOG_LEVEL"
)

// Config represents the complete relay configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	LLM            LLMConfig            `yaml:"llm"`
	Chat           ChatConfig           `yaml:"chat"`
	Logging        LoggingConfig        `yaml:"logging"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds settings for the inbound HTTP server.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 5500)
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must cover the outbound completion call (default: 0, none)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ShutdownTimeout specifies how long to wait for in-flight requests
	// when the process is asked to stop (default: 10s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// StaticDir is served at / when it exists. Empty disables it.
	StaticDir string `yaml:"static_dir"`
}

// LLMConfig describes the remote completion API.
type LLMConfig struct {
	// Endpoint is the full URL of the chat completions endpoint
	Endpoint string `yaml:"endpoint"`

	// APIKey is sent as a bearer credential. Use ${DEEPSEEK_API_KEY} or the
	// environment variable of the same name.
	APIKey string `yaml:"api_key"`

	// DefaultModel is used when an inbound request names no model
	DefaultModel string `yaml:"default_model"`

	// Timeout bounds a single outbound call. Zero keeps the transport default.
	Timeout time.Duration `yaml:"timeout"`
}

// ChatConfig controls how inbound chat requests are turned into transcripts.
type ChatConfig struct {
	// AssistantLabel is the persona label used for assistant turns and for
	// the trailing continuation cue (default: Vitsa)
	AssistantLabel string `yaml:"assistant_label"`

	// StrictHistory rejects requests whose history entries are malformed
	// instead of passing them through to the formatter.
	StrictHistory bool `yaml:"strict_history"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level"`

	// Format specifies log output format: json or text
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`

	// CountPromptTokens observes the tiktoken size of every transcript.
	// The encoding is fetched on first use, so it is off by default.
	CountPromptTokens bool   `yaml:"count_prompt_tokens"`
	TokenizerModel    string `yaml:"tokenizer_model"`
}

// CircuitBreakerConfig configures the optional breaker in front of the
// completion gateway. A tripped breaker fails calls locally; it never retries.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxRequests is the number of requests allowed through when half-open
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state after which the
	// failure counts are cleared
	Interval time.Duration `yaml:"interval"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is the number of consecutive failures needed to trip
	FailureThreshold uint32 `yaml:"failure_threshold"`
}

// DefaultConfig returns the configuration the relay runs with when no file
// and no environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5500,
			ReadTimeout:     30 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 10 * time.Second,
			StaticDir:       "public",
		},
		LLM: LLMConfig{
			Endpoint:     "https://api.deepseek.com/v1/chat/completions",
			DefaultModel: "deepseek-chat",
		},
		Chat: ChatConfig{
			AssistantLabel: "Vitsa",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			Path:           "/metrics",
			TokenizerModel: "gpt-4",
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
	}
}

// LoadEnvFile loads variables from a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(filename string) error {
	if err := godotenv.Load(filename); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadFile loads configuration from a YAML file. When the file does not
// exist the defaults plus environment overrides are used.
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Load(strings.NewReader(""))
		}
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := DefaultConfig()

	if expanded := expandEnvVars(string(data)); strings.TrimSpace(expanded) != "" {
		if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references.
// Unset variables without a default expand to the empty string.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	})
}

// applyEnv overlays the well-known environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid. A missing API key is
// allowed: the gateway reports it per call as a setup failure.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}

	if c.LLM.Endpoint == "" {
		return fmt.Errorf("empty LLM endpoint")
	}
	if c.LLM.DefaultModel == "" {
		return fmt.Errorf("empty default model")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("negative LLM timeout: %v", c.LLM.Timeout)
	}

	if c.Chat.AssistantLabel == "" {
		return fmt.Errorf("empty assistant label")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /: %q", c.Metrics.Path)
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold == 0 {
			return fmt.Errorf("circuit breaker failure threshold must be positive")
		}
		if c.CircuitBreaker.Timeout <= 0 {
			return fmt.Errorf("circuit breaker timeout must be positive")
		}
	}

	return nil
}
