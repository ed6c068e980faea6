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

// Package server provides the HTTP surface of the pod injector: the
// admission endpoint, health probes, metrics and the TLS listener.
package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker answers liveness and readiness probes
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool
}

// NewHealthChecker creates a new health checker instance
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// HealthzHandler implements the /healthz endpoint.
// The process is alive whenever it can answer.
func (h *HealthChecker) HealthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadyzHandler implements the /readyz endpoint.
// Returns 200 OK only once the listener is serving.
func (h *HealthChecker) ReadyzHandler(c *gin.Context) {
	if !h.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SetReady marks the server as ready or not ready
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the server is ready
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// Uptime returns the time since the checker was created
func (h *HealthChecker) Uptime() time.Duration {
	return time.Since(h.startTime)
}
