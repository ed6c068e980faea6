package di

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/yachiko/podinjector/internal/server"
	"github.com/yachiko/podinjector/pkg/config"
	"github.com/yachiko/podinjector/pkg/logging"
	"github.com/yachiko/podinjector/pkg/metrics"
	"github.com/yachiko/podinjector/pkg/webhook"
)

// ServiceRegistry registers all webhook services with the DI container
type ServiceRegistry struct {
	container  *Container
	configFile string
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(container *Container) *ServiceRegistry {
	return &ServiceRegistry{
		container: container,
	}
}

// WithConfigFile sets the configuration file path
func (r *ServiceRegistry) WithConfigFile(configFile string) *ServiceRegistry {
	r.configFile = configFile
	return r
}

// RegisterAll registers every service in dependency order
func (r *ServiceRegistry) RegisterAll() error {
	if err := r.RegisterConfiguration(); err != nil {
		return fmt.Errorf("failed to register configuration: %w", err)
	}

	if err := r.RegisterLogger(); err != nil {
		return fmt.Errorf("failed to register logger: %w", err)
	}

	if err := r.RegisterCoreServices(); err != nil {
		return fmt.Errorf("failed to register core services: %w", err)
	}

	if err := r.RegisterServers(); err != nil {
		return fmt.Errorf("failed to register servers: %w", err)
	}

	return nil
}

// RegisterConfiguration registers the loader and the loaded configuration
func (r *ServiceRegistry) RegisterConfiguration() error {
	if err := r.container.Provide(func() *config.Loader {
		loader := config.NewLoader()
		if r.configFile != "" {
			loader = loader.WithConfigFile(r.configFile)
		}
		return loader
	}); err != nil {
		return err
	}

	return r.container.Provide(func(loader *config.Loader) (*config.Config, error) {
		return loader.Load()
	})
}

// RegisterLogger registers the structured logger
func (r *ServiceRegistry) RegisterLogger() error {
	if err := r.container.Provide(func(cfg *config.Config) (*logging.Logger, error) {
		return logging.NewLogger(&logging.Config{
			Level:       cfg.Observability.Logging.Level,
			Format:      cfg.Observability.Logging.Format,
			Development: cfg.Observability.Logging.Development,
		})
	}); err != nil {
		return err
	}

	return r.container.Provide(func(logger *logging.Logger) logr.Logger {
		return logger.Logger
	})
}

// RegisterCoreServices registers the metrics collector and the reviewer
func (r *ServiceRegistry) RegisterCoreServices() error {
	if err := r.container.Provide(metrics.NewCollector); err != nil {
		return err
	}

	return r.container.Provide(func(cfg *config.Config) *webhook.Reviewer {
		return webhook.NewReviewer(webhook.WithPatchVerification(cfg.Webhook.VerifyPatch))
	})
}

// RegisterServers registers the HTTP handlers and the server owning them
func (r *ServiceRegistry) RegisterServers() error {
	constructors := []interface{}{
		server.NewHealthChecker,
		server.NewWebhookServer,

		// A nil metrics server leaves /metrics unrouted
		func(cfg *config.Config, collector *metrics.Collector) (*server.MetricsServer, error) {
			if !cfg.Observability.Metrics.Enabled {
				return nil, nil
			}
			return server.NewMetricsServer(collector)
		},

		func(
			cfg *config.Config,
			logger logr.Logger,
			webhookServer *server.WebhookServer,
			health *server.HealthChecker,
			metricsServer *server.MetricsServer,
		) *server.Server {
			return server.NewServer(cfg.Server, logger, webhookServer, health, metricsServer)
		},
	}

	for _, constructor := range constructors {
		if err := r.container.Provide(constructor); err != nil {
			return err
		}
	}
	return nil
}
