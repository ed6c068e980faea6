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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	metricsCollector "github.com/yachiko/podinjector/pkg/metrics"
)

var _ = Describe("MetricsServer", func() {
	var (
		collector     *metricsCollector.Collector
		registry      *prometheus.Registry
		metricsServer *MetricsServer
		engine        *gin.Engine
	)

	BeforeEach(func() {
		var err error
		collector = metricsCollector.NewCollector()
		registry = prometheus.NewRegistry()
		metricsServer, err = NewMetricsServerFor(collector, registry, registry)
		Expect(err).NotTo(HaveOccurred())

		engine = createTestEngine()
		engine.GET("/metrics", metricsServer.MetricsHandler)
	})

	Describe("NewMetricsServerFor", func() {
		It("should keep the collector", func() {
			Expect(metricsServer.Collector()).To(BeIdenticalTo(collector))
		})

		It("should accept a nil collector", func() {
			server, err := NewMetricsServerFor(nil, prometheus.NewRegistry(), prometheus.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Collector()).To(BeNil())
		})
	})

	Describe("MetricsHandler", func() {
		It("should serve the webhook metrics in the text format", func() {
			collector.RecordRequest(metricsCollector.ResultMutated, 5*time.Millisecond)
			collector.RecordPatch(10)

			response := performRequest(engine, http.MethodGet, "/metrics", nil)
			Expect(response.Code).To(Equal(http.StatusOK))
			Expect(response.Header().Get("Content-Type")).To(ContainSubstring("text/plain"))

			body := response.Body.String()
			Expect(body).To(ContainSubstring(`podinjector_webhook_requests_total{result="mutated"} 1`))
			Expect(body).To(ContainSubstring(`podinjector_webhook_requests_total{result="invalid_json"} 0`))
			Expect(body).To(ContainSubstring("podinjector_webhook_patch_operations_count 1"))
			Expect(body).To(ContainSubstring("podinjector_webhook_request_duration_seconds_count 1"))
		})
	})
})
