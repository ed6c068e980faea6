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
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	metricsCollector "github.com/yachiko/podinjector/pkg/metrics"
)

// MetricsServer serves the webhook metrics in the Prometheus text format
type MetricsServer struct {
	collector *metricsCollector.Collector
	handler   http.Handler
}

// NewMetricsServer registers collector with the controller-runtime registry
// and serves that registry.
func NewMetricsServer(collector *metricsCollector.Collector) (*MetricsServer, error) {
	return NewMetricsServerFor(collector, metrics.Registry, metrics.Registry)
}

// NewMetricsServerFor registers collector with registry and serves gatherer
func NewMetricsServerFor(collector *metricsCollector.Collector, registry prometheus.Registerer, gatherer prometheus.Gatherer) (*MetricsServer, error) {
	if collector != nil {
		if err := collector.RegisterMetrics(registry); err != nil {
			return nil, fmt.Errorf("failed to register webhook metrics: %w", err)
		}
	}

	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
		Registry:      registry,
		Timeout:       30 * time.Second,
	})

	return &MetricsServer{
		collector: collector,
		handler:   handler,
	}, nil
}

// MetricsHandler implements the /metrics endpoint
func (m *MetricsServer) MetricsHandler(c *gin.Context) {
	gin.WrapH(m.handler)(c)
}

// Collector returns the collector whose metrics are served
func (m *MetricsServer) Collector() *metricsCollector.Collector {
	return m.collector
}
