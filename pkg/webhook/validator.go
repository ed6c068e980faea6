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

package webhook

import (
	admissionv1 "k8s.io/api/admission/v1"

	"github.com/yachiko/podinjector/pkg/apis"
)

const (
	// MutateKey is the label and annotation that opt a pod into injection
	MutateKey = "mutate"

	// VersionLabel selects the artifact version to download
	VersionLabel = "version"

	// LabIDLabel identifies the lab the pod belongs to
	LabIDLabel = "labid"

	mutateEnabled = "true"
)

// IsValidAdmissionReview reports whether a decoded JSON value is an
// admission.k8s.io/v1 AdmissionReview carrying a "request" key. Only the
// presence of the key is checked, not its value.
func IsValidAdmissionReview(body interface{}) bool {
	review, ok := body.(map[string]interface{})
	if !ok {
		return false
	}

	if apiVersion, _ := review["apiVersion"].(string); apiVersion != apis.AdmissionAPIVersion {
		return false
	}
	if kind, _ := review["kind"].(string); kind != apis.AdmissionReviewKind {
		return false
	}

	_, hasRequest := review["request"]
	return hasRequest
}

// ShouldMutate reports whether a request is a Pod CREATE that opted in through
// both the mutate label and annotation and carries the version and labid labels.
// An object that cannot be decoded as a pod never mutates.
func ShouldMutate(req *apis.AdmissionRequest) bool {
	if !IsPodCreate(req) {
		return false
	}
	pod, err := req.DecodeObject()
	return err == nil && IsOptedIn(pod)
}

// IsPodCreate reports whether req is a CREATE of kind Pod. It reads only the
// kind and operation, never the admitted object.
func IsPodCreate(req *apis.AdmissionRequest) bool {
	return req.GetKind() == "Pod" && req.GetOperation() == admissionv1.Create
}

// IsOptedIn reports whether pod carries the mutate label and annotation set to
// "true" and both the version and labid labels.
func IsOptedIn(pod *apis.Pod) bool {
	metadata := pod.GetMetadata()
	labels := metadata.GetLabels()
	annotations := metadata.GetAnnotations()

	return labels.Equals(MutateKey, mutateEnabled) &&
		annotations.Equals(MutateKey, mutateEnabled) &&
		labels.Has(VersionLabel) &&
		labels.Has(LabIDLabel)
}
