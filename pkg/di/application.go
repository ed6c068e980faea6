package di

import (
	"context"
	"fmt"
	"sync"

	"github.com/yachiko/podinjector/internal/server"
	"github.com/yachiko/podinjector/pkg/config"
	"github.com/yachiko/podinjector/pkg/logging"
)

// ApplicationBuilder helps build and configure the webhook application using DI
type ApplicationBuilder struct {
	container  *Container
	configFile string
}

// NewApplicationBuilder creates a new application builder
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{
		container: NewContainer(),
	}
}

// WithConfigFile sets the configuration file path
func (b *ApplicationBuilder) WithConfigFile(path string) *ApplicationBuilder {
	b.configFile = path
	return b
}

// Build builds the application with all dependencies configured
func (b *ApplicationBuilder) Build(_ context.Context) (*Application, error) {
	registry := NewServiceRegistry(b.container).WithConfigFile(b.configFile)
	if err := registry.RegisterAll(); err != nil {
		return nil, fmt.Errorf("failed to register services: %w", err)
	}

	b.container.MustProvide(func(cfg *config.Config, logger *logging.Logger) *Application {
		return &Application{
			Config:    cfg,
			Logger:    logger,
			Container: b.container,
		}
	})

	app, err := Resolve[*Application](b.container)
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}

	return app, nil
}

// Application represents the main webhook application
type Application struct {
	Config    *config.Config
	Logger    *logging.Logger
	Container *Container

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Start resolves the server and serves until ctx is cancelled
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Info("Starting pod injector webhook",
		"port", a.Config.Server.Port,
		"certFile", a.Config.Server.CertFile,
		"keyFile", a.Config.Server.KeyFile,
		"verifyPatch", a.Config.Webhook.VerifyPatch,
		"metrics", a.Config.Observability.Metrics.Enabled,
	)

	srv, err := Resolve[*server.Server](a.Container)
	if err != nil {
		return fmt.Errorf("failed to resolve server from DI container: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("failed to run server: %w", err)
	}

	a.Logger.Info("Pod injector webhook stopped")
	return nil
}

// Stop asks a running Start to shut the server down
func (a *Application) Stop(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.Logger.Info("Stopping pod injector webhook")
		a.cancel()
	}
	return nil
}

// GetConfig returns the application configuration
func (a *Application) GetConfig() *config.Config {
	return a.Config
}

// NewApplication creates a new application with default configuration
func NewApplication(ctx context.Context) (*Application, error) {
	return NewApplicationBuilder().Build(ctx)
}

// NewApplicationWithConfig creates a new application with configuration from file
func NewApplicationWithConfig(ctx context.Context, configFile string) (*Application, error) {
	return NewApplicationBuilder().WithConfigFile(configFile).Build(ctx)
}
