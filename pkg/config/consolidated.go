// Package config provides configuration structures and defaults for the pod injector webhook.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure of the webhook
type Config struct {
	// Server contains listener and TLS configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Webhook contains mutation behaviour configuration
	Webhook WebhookConfig `yaml:"webhook" json:"webhook"`

	// Observability contains metrics and logging configuration
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ServerConfig contains HTTP(S) listener configuration
type ServerConfig struct {
	// Port is the port the webhook listens on
	Port int `yaml:"port" json:"port"`

	// CertFile is the path of the PEM encoded serving certificate
	CertFile string `yaml:"certFile" json:"certFile"`

	// KeyFile is the path of the PEM encoded private key
	KeyFile string `yaml:"keyFile" json:"keyFile"`

	// WatchCertificates reloads the key pair when the files change
	WatchCertificates bool `yaml:"watchCertificates" json:"watchCertificates"`

	// ReadTimeout bounds reading a whole request
	ReadTimeout time.Duration `yaml:"readTimeout" json:"readTimeout"`

	// WriteTimeout bounds writing a response
	WriteTimeout time.Duration `yaml:"writeTimeout" json:"writeTimeout"`

	// ShutdownTimeout bounds the graceful shutdown of in-flight requests
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// WebhookConfig contains mutation behaviour configuration
type WebhookConfig struct {
	// VerifyPatch applies every generated patch to the admitted pod before answering
	VerifyPatch bool `yaml:"verifyPatch" json:"verifyPatch"`
}

// ObservabilityConfig contains metrics and logging configuration
type ObservabilityConfig struct {
	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	// Enabled serves /metrics on the webhook listener
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Format is the log format (json, console)
	Format string `yaml:"format" json:"format"`

	// Development enables development mode (stack traces on warnings, etc.)
	Development bool `yaml:"development" json:"development"`
}

// DefaultConfig returns the default webhook configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8443,
			CertFile:          "/tls/tls.crt",
			KeyFile:           "/tls/tls.key",
			WatchCertificates: true,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Webhook: WebhookConfig{
			VerifyPatch: false,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
			Logging: LoggingConfig{
				Level:       "info",
				Format:      "json",
				Development: false,
			},
		},
	}
}

// Address returns the listen address for the configured port
func (c *ServerConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.readTimeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.writeTimeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdownTimeout must be positive")
	}

	switch c.Observability.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("observability.logging.format must be json or console, got %q", c.Observability.Logging.Format)
	}

	return nil
}
