package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the prefix of the webhook's environment variables
const DefaultEnvPrefix = "PODINJECTOR"

// portEnv is the unprefixed port variable set by common container platforms
const portEnv = "PORT"

// Loader handles loading configuration from various sources
type Loader struct {
	// ConfigFile is the path to the YAML configuration file
	ConfigFile string
	// EnvPrefix is the prefix for environment variables (defaults to "PODINJECTOR")
	EnvPrefix string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		EnvPrefix: DefaultEnvPrefix,
	}
}

// WithConfigFile sets the configuration file path
func (l *Loader) WithConfigFile(path string) *Loader {
	l.ConfigFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.EnvPrefix = prefix
	return l
}

// Load loads configuration from all sources in priority order:
// 1. Default configuration
// 2. Configuration file (if specified)
// 3. Environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	if l.ConfigFile != "" {
		if err := l.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	l.loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func (l *Loader) loadFromFile(config *Config) error {
	data, err := os.ReadFile(l.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.ConfigFile, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (l *Loader) loadFromEnv(config *Config) {
	// PORT is honoured first so the prefixed variable wins when both are set
	if val := os.Getenv(portEnv); val != "" {
		config.Server.Port = l.parseInt(val, config.Server.Port)
	}

	// Server configuration
	if val := l.getEnv("SERVER_PORT"); val != "" {
		config.Server.Port = l.parseInt(val, config.Server.Port)
	}
	if val := l.getEnv("SERVER_CERT_FILE"); val != "" {
		config.Server.CertFile = val
	}
	if val := l.getEnv("SERVER_KEY_FILE"); val != "" {
		config.Server.KeyFile = val
	}
	if val := l.getEnv("SERVER_WATCH_CERTIFICATES"); val != "" {
		config.Server.WatchCertificates = l.parseBool(val, config.Server.WatchCertificates)
	}
	if val := l.getEnv("SERVER_READ_TIMEOUT"); val != "" {
		config.Server.ReadTimeout = l.parseDuration(val, config.Server.ReadTimeout)
	}
	if val := l.getEnv("SERVER_WRITE_TIMEOUT"); val != "" {
		config.Server.WriteTimeout = l.parseDuration(val, config.Server.WriteTimeout)
	}
	if val := l.getEnv("SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		config.Server.ShutdownTimeout = l.parseDuration(val, config.Server.ShutdownTimeout)
	}

	// Webhook configuration
	if val := l.getEnv("WEBHOOK_VERIFY_PATCH"); val != "" {
		config.Webhook.VerifyPatch = l.parseBool(val, config.Webhook.VerifyPatch)
	}

	// Metrics configuration
	if val := l.getEnv("METRICS_ENABLED"); val != "" {
		config.Observability.Metrics.Enabled = l.parseBool(val, config.Observability.Metrics.Enabled)
	}

	// Logging configuration
	if val := l.getEnv("LOGGING_LEVEL"); val != "" {
		config.Observability.Logging.Level = val
	}
	if val := l.getEnv("LOGGING_FORMAT"); val != "" {
		config.Observability.Logging.Format = val
	}
	if val := l.getEnv("LOGGING_DEVELOPMENT"); val != "" {
		config.Observability.Logging.Development = l.parseBool(val, config.Observability.Logging.Development)
	}
}

// getEnv gets an environment variable with the configured prefix
func (l *Loader) getEnv(key string) string {
	return os.Getenv(l.EnvPrefix + "_" + key)
}

// parseBool parses a boolean string, returning fallback on error
func (l *Loader) parseBool(val string, fallback bool) bool {
	switch strings.ToLower(val) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return fallback
	}
}

// parseInt parses an integer string, returning fallback on error
func (l *Loader) parseInt(val string, fallback int) int {
	if i, err := strconv.Atoi(val); err == nil {
		return i
	}
	return fallback
}

func (l *Loader) parseDuration(val string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return fallback
}

// Save saves the configuration to a YAML file
func (config *Config) Save(filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadFromFile is a convenience function to load configuration from a file
func LoadFromFile(filename string) (*Config, error) {
	return NewLoader().WithConfigFile(filename).Load()
}
