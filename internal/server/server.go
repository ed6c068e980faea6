/*
Copyright 2024 The Spotalis Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"github.com/yachiko/podinjector/pkg/config"
	"github.com/yachiko/podinjector/pkg/webhook"
)

// Server owns the gin engine and the listener serving it
type Server struct {
	config  config.ServerConfig
	address string
	logger  logr.Logger
	engine  *gin.Engine
	health  *HealthChecker

	mu          sync.RWMutex
	listenAddr  net.Addr
	tlsEnabled  bool
	certWatcher *webhook.CertificateWatcher
}

// NewServer builds the engine and registers every route. metricsServer may
// be nil, in which case /metrics is not served.
func NewServer(cfg config.ServerConfig, logger logr.Logger, webhookServer *WebhookServer, health *HealthChecker, metricsServer *MetricsServer) *Server {
	logger = logger.WithName("server")

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(logger))

	webhookServer.SetupRoutes(engine)
	engine.GET("/healthz", health.HealthzHandler)
	engine.GET("/readyz", health.ReadyzHandler)
	if metricsServer != nil {
		engine.GET("/metrics", metricsServer.MetricsHandler)
	}

	return &Server{
		config:  cfg,
		address: cfg.Address(),
		logger:  logger,
		engine:  engine,
		health:  health,
	}
}

// Engine returns the gin engine serving every route
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the address the server listens on, or nil before Run
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddr
}

// TLSEnabled reports whether the running listener serves TLS
func (s *Server) TLSEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tlsEnabled
}

// Run serves until ctx is cancelled, then shuts down gracefully. It serves
// TLS when the configured key pair loads and plain HTTP otherwise.
func (s *Server) Run(ctx context.Context) error {
	tlsConfig := s.loadTLS()

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}

	httpServer := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		TLSConfig:    tlsConfig,
	}

	s.mu.Lock()
	s.listenAddr = listener.Addr()
	s.tlsEnabled = tlsConfig != nil
	watcher := s.certWatcher
	s.mu.Unlock()

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()
	if watcher != nil && s.config.WatchCertificates {
		go func() {
			if err := watcher.Start(watchCtx); err != nil {
				s.logger.Error(err, "Certificate watcher stopped")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()

	s.health.SetReady(true)
	s.logger.Info("Webhook server listening", "address", listener.Addr().String(), "tls", tlsConfig != nil)

	select {
	case err := <-serveErr:
		s.health.SetReady(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook server failed: %w", err)
	case <-ctx.Done():
	}

	s.health.SetReady(false)
	s.logger.Info("Shutting down webhook server", "timeout", s.config.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down webhook server: %w", err)
	}
	return nil
}

// loadTLS returns the listener TLS configuration, or nil to serve plain HTTP
func (s *Server) loadTLS() *tls.Config {
	certFile, keyFile := s.config.CertFile, s.config.KeyFile
	if !fileExists(certFile) || !fileExists(keyFile) {
		s.logger.Info("WARNING: No TLS certs found, running HTTP (dev mode)", "certFile", certFile, "keyFile", keyFile)
		return nil
	}

	watcher := webhook.NewCertificateWatcher(certFile, keyFile, func(tls.Certificate) {
		s.logger.Info("Loaded serving certificate", "certFile", certFile)
	}).WithLogger(s.logger)

	if err := watcher.Load(); err != nil {
		s.logger.Error(err, "Failed to load TLS certificates")
		s.logger.Info("WARNING: Falling back to HTTP")
		return nil
	}

	s.mu.Lock()
	s.certWatcher = watcher
	s.mu.Unlock()

	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: watcher.GetCertificate,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
