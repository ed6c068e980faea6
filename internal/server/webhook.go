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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/yachiko/podinjector/pkg/metrics"
	"github.com/yachiko/podinjector/pkg/webhook"
)

// Bodies of the 400 responses
const (
	invalidJSONMessage   = "Invalid JSON"
	invalidReviewMessage = "Invalid AdmissionReview"
)

// WebhookServer exposes the reviewer as the /mutate admission endpoint
type WebhookServer struct {
	reviewer  *webhook.Reviewer
	collector *metrics.Collector
}

// NewWebhookServer creates a new webhook server instance; collector may be nil
func NewWebhookServer(reviewer *webhook.Reviewer, collector *metrics.Collector) *WebhookServer {
	return &WebhookServer{
		reviewer:  reviewer,
		collector: collector,
	}
}

// MutateHandler implements the /mutate webhook endpoint
func (w *WebhookServer) MutateHandler(c *gin.Context) {
	timer := metrics.NewTimer()
	ctx := c.Request.Context()
	logger := log.FromContext(ctx)

	body, err := c.GetRawData()
	if err != nil {
		logger.Error(err, "Failed to read request body")
		w.observe(timer, metrics.ResultInvalidJSON)
		c.JSON(http.StatusBadRequest, gin.H{"message": invalidJSONMessage})
		return
	}

	decision, err := w.reviewer.Review(ctx, body)
	switch {
	case errors.Is(err, webhook.ErrInvalidJSON):
		w.observe(timer, metrics.ResultInvalidJSON)
		c.JSON(http.StatusBadRequest, gin.H{"message": invalidJSONMessage})
		return
	case err != nil:
		w.observe(timer, metrics.ResultInvalidReview)
		c.JSON(http.StatusBadRequest, gin.H{"message": invalidReviewMessage})
		return
	}

	review := decision.Review()
	logger.Info("Sending admission response",
		"uid", decision.UID,
		"outcome", decision.Outcome,
		"allowed", review.Response.Allowed,
		"message", decision.Message,
		"hasPatch", review.Response.PatchType != nil,
	)

	if w.collector != nil && decision.Outcome == webhook.OutcomeMutated {
		w.collector.RecordPatch(len(decision.Patch))
	}
	w.observe(timer, string(decision.Outcome))

	c.JSON(http.StatusOK, review)
}

func (w *WebhookServer) observe(timer *metrics.Timer, result string) {
	if w.collector != nil {
		timer.ObserveRequest(w.collector, result)
	}
}

// SetupRoutes configures the webhook routes on the given Gin router
func (w *WebhookServer) SetupRoutes(router gin.IRoutes) {
	router.POST("/mutate", w.MutateHandler)
}
