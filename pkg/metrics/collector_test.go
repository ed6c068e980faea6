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

package metrics

import (
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ = Describe("Collector", func() {
	var (
		collector *Collector
		registry  *prometheus.Registry
	)

	BeforeEach(func() {
		collector = NewCollector()
		registry = prometheus.NewRegistry()
		Expect(collector.RegisterMetrics(registry)).To(Succeed())
	})

	Describe("NewCollector", func() {
		It("should create a collector with initialized timestamp", func() {
			c := NewCollector()
			Expect(c).NotTo(BeNil())
			Expect(c.startedAt).To(BeTemporally("~", time.Now(), time.Second))
		})

		It("should expose every request result at zero", func() {
			for _, result := range requestResults {
				Expect(testutil.ToFloat64(collector.requests.WithLabelValues(result))).To(BeZero())
			}
			Expect(testutil.CollectAndCount(collector.requests)).To(Equal(len(requestResults)))
		})
	})

	Describe("RegisterMetrics", func() {
		It("should tolerate registering the same collector twice", func() {
			Expect(collector.RegisterMetrics(registry)).To(Succeed())
		})

		It("should register every metric family", func() {
			count, err := testutil.GatherAndCount(registry)
			Expect(err).NotTo(HaveOccurred())
			// five request series plus the two histograms
			Expect(count).To(Equal(7))
		})
	})

	Describe("RecordRequest", func() {
		It("should count requests by result", func() {
			collector.RecordRequest(ResultMutated, 10*time.Millisecond)
			collector.RecordRequest(ResultMutated, 20*time.Millisecond)
			collector.RecordRequest(ResultInvalidJSON, time.Millisecond)

			Expect(testutil.ToFloat64(collector.requests.WithLabelValues(ResultMutated))).To(Equal(2.0))
			Expect(testutil.ToFloat64(collector.requests.WithLabelValues(ResultInvalidJSON))).To(Equal(1.0))
			Expect(testutil.ToFloat64(collector.requests.WithLabelValues(ResultSkipped))).To(BeZero())
			Expect(collector.GetMetricsSnapshot().Requests).To(Equal(3))
		})

		It("should export the counter in the text format", func() {
			collector.RecordRequest(ResultRecovered, time.Millisecond)

			expected := `
# HELP podinjector_webhook_requests_total Total number of admission requests by result
# TYPE podinjector_webhook_requests_total counter
podinjector_webhook_requests_total{result="invalid_json"} 0
podinjector_webhook_requests_total{result="invalid_review"} 0
podinjector_webhook_requests_total{result="mutated"} 0
podinjector_webhook_requests_total{result="recovered"} 1
podinjector_webhook_requests_total{result="skipped"} 0
`
			Expect(testutil.GatherAndCompare(registry, strings.NewReader(expected), "podinjector_webhook_requests_total")).To(Succeed())
		})

		It("should be safe for concurrent use", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					collector.RecordRequest(ResultSkipped, time.Microsecond)
				}()
			}
			wg.Wait()

			Expect(testutil.ToFloat64(collector.requests.WithLabelValues(ResultSkipped))).To(Equal(20.0))
			Expect(collector.GetMetricsSnapshot().Requests).To(Equal(20))
		})
	})

	Describe("RecordPatch", func() {
		It("should observe the operation count", func() {
			collector.RecordPatch(10)

			expected := `
# HELP podinjector_webhook_patch_operations Number of JSON Patch operations per mutated pod
# TYPE podinjector_webhook_patch_operations histogram
podinjector_webhook_patch_operations_bucket{le="4"} 0
podinjector_webhook_patch_operations_bucket{le="10"} 1
podinjector_webhook_patch_operations_bucket{le="16"} 1
podinjector_webhook_patch_operations_bucket{le="22"} 1
podinjector_webhook_patch_operations_bucket{le="28"} 1
podinjector_webhook_patch_operations_bucket{le="34"} 1
podinjector_webhook_patch_operations_bucket{le="40"} 1
podinjector_webhook_patch_operations_bucket{le="46"} 1
podinjector_webhook_patch_operations_bucket{le="+Inf"} 1
podinjector_webhook_patch_operations_sum 10
podinjector_webhook_patch_operations_count 1
`
			Expect(testutil.GatherAndCompare(registry, strings.NewReader(expected), "podinjector_webhook_patch_operations")).To(Succeed())
		})
	})

	Describe("Timer", func() {
		It("should measure elapsed time", func() {
			timer := NewTimer()
			time.Sleep(10 * time.Millisecond)
			Expect(timer.Elapsed()).To(BeNumerically(">=", 10*time.Millisecond))
		})

		It("should record a request with its duration", func() {
			NewTimer().ObserveRequest(collector, ResultMutated)

			Expect(testutil.ToFloat64(collector.requests.WithLabelValues(ResultMutated))).To(Equal(1.0))
			Expect(testutil.CollectAndCount(collector.requestSeconds)).To(Equal(1))
		})
	})
})
