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

// Package apis defines the request-side schema of admission reviews handled
// by the pod injector. Every field that the API server may omit is optional,
// and every nested lookup goes through a nil-safe accessor so that sparse
// payloads degrade to zero values instead of failing.
package apis

import (
	"bytes"
	"encoding/json"
	"fmt"

	admissionv1 "k8s.io/api/admission/v1"
	"k8s.io/apimachinery/pkg/types"
)

const (
	// AdmissionAPIVersion is the only AdmissionReview version accepted
	AdmissionAPIVersion = "admission.k8s.io/v1"

	// AdmissionReviewKind is the kind carried by every review envelope
	AdmissionReviewKind = "AdmissionReview"
)

// AdmissionRequest is the "request" member of an AdmissionReview. Fields are
// kept raw so an ill-typed kind, operation or object never fails decoding of
// the request itself; the object is decoded only once the request is known to
// be a Pod CREATE.
type AdmissionRequest struct {
	UID       json.RawMessage `json:"uid,omitempty"`
	Kind      json.RawMessage `json:"kind,omitempty"`
	Operation json.RawMessage `json:"operation,omitempty"`
	Object    json.RawMessage `json:"object,omitempty"`
}

// GetUID returns the request UID, or an empty UID when absent or not a string
func (r *AdmissionRequest) GetUID() types.UID {
	if r == nil {
		return ""
	}
	uid, _ := jsonString(r.UID)
	return types.UID(uid)
}

// GetKind returns kind.kind, or an empty string when absent or not a string
func (r *AdmissionRequest) GetKind() string {
	if r == nil {
		return ""
	}
	var gvk StringMap
	if err := json.Unmarshal(r.Kind, &gvk); err != nil {
		return ""
	}
	kind, _ := jsonString(gvk["kind"])
	return kind
}

// GetOperation returns the admission operation, or an empty operation when
// absent or not a string
func (r *AdmissionRequest) GetOperation() admissionv1.Operation {
	if r == nil {
		return ""
	}
	operation, _ := jsonString(r.Operation)
	return admissionv1.Operation(operation)
}

// DecodeObject decodes the admitted object as a pod. A missing or null object
// decodes to nil without error.
func (r *AdmissionRequest) DecodeObject() (*Pod, error) {
	if r == nil {
		return nil, nil
	}
	raw := bytes.TrimSpace(r.Object)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var pod Pod
	if err := json.Unmarshal(raw, &pod); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return &pod, nil
}

// GetObject returns the admitted pod, or nil when absent or not decodable
func (r *AdmissionRequest) GetObject() *Pod {
	pod, err := r.DecodeObject()
	if err != nil {
		return nil
	}
	return pod
}

// Pod is the subset of a Pod object the injector reads
type Pod struct {
	Metadata *ObjectMeta `json:"metadata,omitempty"`
	Spec     *PodSpec    `json:"spec,omitempty"`
}

// GetMetadata returns the pod metadata, or nil when absent
func (p *Pod) GetMetadata() *ObjectMeta {
	if p == nil {
		return nil
	}
	return p.Metadata
}

// GetSpec returns the pod spec, or nil when absent
func (p *Pod) GetSpec() *PodSpec {
	if p == nil {
		return nil
	}
	return p.Spec
}

// ObjectMeta holds the pod metadata fields used for the mutation decision
type ObjectMeta struct {
	Name        json.RawMessage `json:"name,omitempty"`
	Labels      StringMap       `json:"labels,omitempty"`
	Annotations StringMap       `json:"annotations,omitempty"`
}

// GetName returns metadata.name, or an empty string when absent or not a string
func (m *ObjectMeta) GetName() string {
	if m == nil {
		return ""
	}
	name, _ := jsonString(m.Name)
	return name
}

// GetLabels returns metadata.labels; the result is safe to read when nil
func (m *ObjectMeta) GetLabels() StringMap {
	if m == nil {
		return nil
	}
	return m.Labels
}

// GetAnnotations returns metadata.annotations; the result is safe to read when nil
func (m *ObjectMeta) GetAnnotations() StringMap {
	if m == nil {
		return nil
	}
	return m.Annotations
}

// PodSpec keeps the list fields whose presence decides between creating and
// appending. initContainers and volumes are kept raw: only key presence matters.
type PodSpec struct {
	Containers     []Container     `json:"containers,omitempty"`
	InitContainers json.RawMessage `json:"initContainers,omitempty"`
	Volumes        json.RawMessage `json:"volumes,omitempty"`
}

// GetContainers returns spec.containers in list order
func (s *PodSpec) GetContainers() []Container {
	if s == nil {
		return nil
	}
	return s.Containers
}

// HasInitContainers reports whether the initContainers key is present, even when null or empty
func (s *PodSpec) HasInitContainers() bool {
	return s != nil && len(s.InitContainers) > 0
}

// HasVolumes reports whether the volumes key is present, even when null or empty
func (s *PodSpec) HasVolumes() bool {
	return s != nil && len(s.Volumes) > 0
}

// Container records which list fields a container already carries
type Container struct {
	Env          json.RawMessage `json:"env,omitempty"`
	VolumeMounts json.RawMessage `json:"volumeMounts,omitempty"`
}

// HasEnv reports whether the env key is present
func (c Container) HasEnv() bool {
	return len(c.Env) > 0
}

// HasVolumeMounts reports whether the volumeMounts key is present
func (c Container) HasVolumeMounts() bool {
	return len(c.VolumeMounts) > 0
}

// StringMap is a string-keyed JSON object whose values are kept raw, so a
// null value stays distinguishable from a missing key and a non-string value
// does not fail decoding.
type StringMap map[string]json.RawMessage

// Lookup returns the value under key and whether it is present and non-null.
// JSON strings are unquoted; any other JSON value is returned in literal form.
func (m StringMap) Lookup(key string) (string, bool) {
	raw, ok := m[key]
	if !ok {
		return "", false
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

// Get returns the value under key, or an empty string when absent or null
func (m StringMap) Get(key string) string {
	value, _ := m.Lookup(key)
	return value
}

// Has reports whether key is present with a non-null value
func (m StringMap) Has(key string) bool {
	_, ok := m.Lookup(key)
	return ok
}

// Equals reports whether key holds exactly the JSON string want
func (m StringMap) Equals(key, want string) bool {
	s, ok := jsonString(m[key])
	return ok && s == want
}

// Strings renders the map for logging; non-string values keep their JSON form
func (m StringMap) Strings() map[string]string {
	out := make(map[string]string, len(m))
	for key, raw := range m {
		if value, ok := m.Lookup(key); ok {
			out[key] = value
			continue
		}
		out[key] = string(raw)
	}
	return out
}

// jsonString unquotes raw when it holds a JSON string. Null, absent and
// non-string values report false.
func jsonString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
