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

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr/funcr"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

var _ = Describe("RequestLogger", func() {
	var (
		engine *gin.Engine
		lines  []string
	)

	BeforeEach(func() {
		lines = nil
		logger := funcr.New(func(prefix, args string) {
			lines = append(lines, args)
		}, funcr.Options{Verbosity: 0})

		engine = createTestEngine()
		engine.Use(RequestLogger(logger))
		engine.GET("/echo", func(c *gin.Context) {
			log.FromContext(c.Request.Context()).Info("handler line")
			c.Status(http.StatusNoContent)
		})
		engine.GET("/healthz", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
	})

	It("should propagate a caller supplied request id", func() {
		response := performRequestWithHeaders(engine, http.MethodGet, "/echo", nil, map[string]string{
			RequestIDHeader: "req-42",
		})

		Expect(response.Code).To(Equal(http.StatusNoContent))
		Expect(response.Header().Get(RequestIDHeader)).To(Equal("req-42"))
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(ContainSubstring(`"msg"="handler line"`))
		Expect(lines[0]).To(ContainSubstring(`"request_id"="req-42"`))
	})

	It("should generate a request id when none is supplied", func() {
		response := performRequest(engine, http.MethodGet, "/echo", nil)

		requestID := response.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(requestID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should write an access log line", func() {
		performRequest(engine, http.MethodGet, "/echo", nil)

		Expect(lines).To(HaveLen(2))
		Expect(lines[1]).To(ContainSubstring(`"msg"="HTTP request"`))
		Expect(lines[1]).To(ContainSubstring(`"path"="/echo"`))
		Expect(lines[1]).To(ContainSubstring(`"status"=204`))
	})

	It("should keep probe requests out of the info log", func() {
		performRequest(engine, http.MethodGet, "/healthz", nil)
		Expect(lines).To(BeEmpty())
	})
})
