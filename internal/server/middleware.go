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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// RequestIDHeader carries the id that correlates log lines of one request
const RequestIDHeader = "X-Request-ID"

// probePaths are logged at debug level only
var probePaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// RequestLogger attaches a request-scoped logger to the request context and
// writes an access log line once the handler returns.
func RequestLogger(logger logr.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		reqLogger := logger.WithValues("request_id", requestID)
		c.Request = c.Request.WithContext(log.IntoContext(c.Request.Context(), reqLogger))

		c.Next()

		accessLogger := reqLogger
		if _, ok := probePaths[c.FullPath()]; ok {
			accessLogger = reqLogger.V(1)
		}
		accessLogger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"remote", c.ClientIP(),
		)
	}
}
