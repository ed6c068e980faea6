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

// Package metrics provides Prometheus metrics collection and recording
// for the mutating webhook.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Request results recorded by RecordRequest
const (
	ResultMutated       = "mutated"
	ResultSkipped       = "skipped"
	ResultRecovered     = "recovered"
	ResultInvalidJSON   = "invalid_json"
	ResultInvalidReview = "invalid_review"
)

var requestResults = []string{
	ResultMutated,
	ResultSkipped,
	ResultRecovered,
	ResultInvalidJSON,
	ResultInvalidReview,
}

// Collector handles metrics collection for the webhook
type Collector struct {
	requests       *prometheus.CounterVec
	patchOps       prometheus.Histogram
	requestSeconds prometheus.Histogram

	mutex     sync.RWMutex
	startedAt time.Time
	total     int
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podinjector_webhook_requests_total",
				Help: "Total number of admission requests by result",
			},
			[]string{"result"},
		),
		patchOps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "podinjector_webhook_patch_operations",
				Help:    "Number of JSON Patch operations per mutated pod",
				Buckets: prometheus.LinearBuckets(4, 6, 8),
			},
		),
		requestSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "podinjector_webhook_request_duration_seconds",
				Help:    "Time spent answering admission requests",
				Buckets: prometheus.DefBuckets,
			},
		),
		startedAt: time.Now(),
	}

	// Every result appears in the output before the first request
	for _, result := range requestResults {
		c.requests.WithLabelValues(result).Add(0)
	}

	return c
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.requests.Describe(ch)
	c.patchOps.Describe(ch)
	c.requestSeconds.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.requests.Collect(ch)
	c.patchOps.Collect(ch)
	c.requestSeconds.Collect(ch)
}

// RegisterMetrics registers the webhook metrics with the provided registry,
// falling back to the controller-runtime registry when it is nil.
func (c *Collector) RegisterMetrics(registry prometheus.Registerer) error {
	if registry == nil {
		registry = metrics.Registry
	}

	if err := registry.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Requests returns the request counter for result
func (c *Collector) Requests(result string) prometheus.Counter {
	return c.requests.WithLabelValues(result)
}

// RecordRequest records one answered admission request
func (c *Collector) RecordRequest(result string, duration time.Duration) {
	c.mutex.Lock()
	c.total++
	c.mutex.Unlock()

	c.requests.WithLabelValues(result).Inc()
	c.requestSeconds.Observe(duration.Seconds())
}

// RecordPatch records the size of a generated patch
func (c *Collector) RecordPatch(operations int) {
	c.patchOps.Observe(float64(operations))
}

// GetMetricsSnapshot returns a snapshot of current metrics values
func (c *Collector) GetMetricsSnapshot() Snapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return Snapshot{
		StartedAt: c.startedAt,
		Timestamp: time.Now(),
		Requests:  c.total,
	}
}

// Snapshot represents a point-in-time snapshot of metrics
type Snapshot struct {
	StartedAt time.Time `json:"startedAt"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int       `json:"requests"`
}

// Timer provides timing functionality for metrics
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration since timer creation
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveRequest records a request with the time elapsed since the timer was created
func (t *Timer) ObserveRequest(collector *Collector, result string) {
	collector.RecordRequest(result, t.Elapsed())
}
