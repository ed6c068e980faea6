// Package logging provides structured JSON logging for the pod injector webhook.
// It integrates with the controller-runtime logging framework and provides
// consistent log formatting across all components.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
	ctrlzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Config defines the logging configuration
type Config struct {
	// Level is the log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Format is the log format (json, console)
	Format string `yaml:"format" json:"format"`

	// Development enables development mode (stack traces on warnings, etc.)
	Development bool `yaml:"development" json:"development"`

	// DestWriter receives the log output; stderr when nil
	DestWriter io.Writer `yaml:"-" json:"-"`
}

// Logger wraps the controller-runtime logger with additional functionality
type Logger struct {
	logr.Logger
	config *Config
}

// DefaultConfig returns default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
	}
}

// NewLogger creates a new structured logger based on the provided configuration
func NewLogger(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	opts := ctrlzap.Options{
		Development: config.Development,
		DestWriter:  config.DestWriter,
	}
	if opts.DestWriter == nil {
		opts.DestWriter = os.Stderr
	}

	switch config.Format {
	case "json", "":
		opts.Encoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
	case "console":
		opts.Encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	default:
		return nil, fmt.Errorf("unsupported log format %q", config.Format)
	}

	level := parseLogLevel(config.Level)
	opts.Level = &level

	ctrlLogger := ctrlzap.New(ctrlzap.UseFlagOptions(&opts))

	return &Logger{
		Logger: ctrlLogger,
		config: config,
	}, nil
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.LevelKey = "level"
	encoderConfig.MessageKey = "msg"
	encoderConfig.CallerKey = "caller"
	encoderConfig.StacktraceKey = "stacktrace"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	return encoderConfig
}

// buildZapConfig creates a zap configuration based on logging config
func buildZapConfig(config *Config) zap.Config {
	var zapConfig zap.Config

	if config.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig = jsonEncoderConfig()
	}

	zapConfig.Development = config.Development
	zapConfig.Level = zap.NewAtomicLevelAt(parseLogLevel(config.Level))

	return zapConfig
}

// parseLogLevel converts string log level to zapcore.Level
func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithName returns a logger with the specified name
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		Logger: l.Logger.WithName(name),
		config: l.config,
	}
}

// WithValues returns a logger with the specified key-value pairs
func (l *Logger) WithValues(keysAndValues ...interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.WithValues(keysAndValues...),
		config: l.config,
	}
}

// WithRequest returns a logger carrying the HTTP request id
func (l *Logger) WithRequest(requestID string) *Logger {
	return &Logger{
		Logger: l.Logger.WithValues("request_id", requestID),
		config: l.config,
	}
}

// GetConfig returns the logging configuration
func (l *Logger) GetConfig() *Config {
	return l.config
}

// SetGlobalLogger installs logger as the controller-runtime logger and
// replaces the global zap logger with one built from the same settings.
func SetGlobalLogger(logger *Logger) error {
	ctrllog.SetLogger(logger.Logger)

	zapLogger, err := buildZapConfig(logger.config).Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(zapLogger)

	return nil
}
