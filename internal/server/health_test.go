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
)

var _ = Describe("HealthChecker", func() {
	var (
		healthChecker *HealthChecker
		engine        *gin.Engine
	)

	BeforeEach(func() {
		healthChecker = NewHealthChecker()
		engine = createTestEngine()
		engine.GET("/healthz", healthChecker.HealthzHandler)
		engine.GET("/readyz", healthChecker.ReadyzHandler)
	})

	Describe("NewHealthChecker", func() {
		It("should create a checker that is not ready", func() {
			checker := NewHealthChecker()
			Expect(checker).NotTo(BeNil())
			Expect(checker.IsReady()).To(BeFalse())
			Expect(checker.startTime).To(BeTemporally("~", time.Now(), time.Second))
			Expect(checker.Uptime()).To(BeNumerically(">=", 0))
		})
	})

	Describe("HealthzHandler", func() {
		It("should return 200 OK with status ok", func() {
			response := performRequest(engine, http.MethodGet, "/healthz", nil)
			Expect(response.Code).To(Equal(http.StatusOK))
			Expect(response.Body.String()).To(MatchJSON(`{"status": "ok"}`))
		})

		It("should not depend on readiness", func() {
			healthChecker.SetReady(false)
			response := performRequest(engine, http.MethodGet, "/healthz", nil)
			Expect(response.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("ReadyzHandler", func() {
		Context("before the server is serving", func() {
			It("should return 503", func() {
				response := performRequest(engine, http.MethodGet, "/readyz", nil)
				Expect(response.Code).To(Equal(http.StatusServiceUnavailable))
				Expect(response.Body.String()).To(MatchJSON(`{"status": "not ready"}`))
			})
		})

		Context("when the server is serving", func() {
			BeforeEach(func() {
				healthChecker.SetReady(true)
			})

			It("should return 200 OK", func() {
				response := performRequest(engine, http.MethodGet, "/readyz", nil)
				Expect(response.Code).To(Equal(http.StatusOK))
				Expect(response.Body.String()).To(MatchJSON(`{"status": "ok"}`))
			})

			It("should return 503 again once marked not ready", func() {
				healthChecker.SetReady(false)
				response := performRequest(engine, http.MethodGet, "/readyz", nil)
				Expect(response.Code).To(Equal(http.StatusServiceUnavailable))
			})
		})
	})
})
