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
	"context"
	"encoding/json"
	"errors"
	"fmt"

	jsonpatchv5 "github.com/evanphx/json-patch/v5"
	"gomodules.xyz/jsonpatch/v2"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/yachiko/podinjector/pkg/apis"
)

var (
	// ErrInvalidJSON is returned when the request body is not valid JSON
	ErrInvalidJSON = errors.New("invalid JSON")

	// ErrInvalidAdmissionReview is returned when the body is not an admission.k8s.io/v1 AdmissionReview
	ErrInvalidAdmissionReview = errors.New("invalid AdmissionReview")
)

// Outcome is the result of reviewing a structurally valid admission request
type Outcome string

const (
	// OutcomeMutated means a patch was produced
	OutcomeMutated Outcome = "mutated"

	// OutcomeSkipped means the request did not meet the mutation criteria
	OutcomeSkipped Outcome = "skipped"

	// OutcomeRecovered means building the mutation failed and the pod is admitted unchanged
	OutcomeRecovered Outcome = "recovered"
)

const (
	// MessageMutated is the status message of a mutated response
	MessageMutated = "Pod mutated successfully"

	// MessageSkipped is the status message when no mutation applies
	MessageSkipped = "No mutation applied"

	recoveredMessagePrefix = "Mutation webhook error: "
)

// Decision is the outcome of a review. Every decision admits the object;
// only a Mutated decision carries a patch.
type Decision struct {
	UID     types.UID
	Outcome Outcome
	Message string
	Patch   []jsonpatch.Operation

	patchJSON []byte
}

// PatchJSON returns the JSON encoding of Patch, or nil when nothing is patched
func (d Decision) PatchJSON() []byte {
	return d.patchJSON
}

// Response renders the decision as an AdmissionResponse
func (d Decision) Response() *admissionv1.AdmissionResponse {
	response := &admissionv1.AdmissionResponse{
		UID:     d.UID,
		Allowed: true,
		Result:  &metav1.Status{Message: d.Message},
	}

	if d.Outcome == OutcomeMutated && len(d.patchJSON) > 0 {
		patchType := admissionv1.PatchTypeJSONPatch
		response.Patch = d.patchJSON
		response.PatchType = &patchType
	}

	return response
}

// Review wraps the response in an admission.k8s.io/v1 AdmissionReview envelope
func (d Decision) Review() *admissionv1.AdmissionReview {
	return &admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			APIVersion: apis.AdmissionAPIVersion,
			Kind:       apis.AdmissionReviewKind,
		},
		Response: d.Response(),
	}
}

// Reviewer turns raw AdmissionReview payloads into decisions. It holds no
// per-request state and is safe for concurrent use.
type Reviewer struct {
	verifyPatch bool
}

// ReviewerOption configures a Reviewer
type ReviewerOption func(*Reviewer)

// WithPatchVerification makes the reviewer apply every patch to the admitted
// object before answering and fall back to an unpatched response when it
// does not apply.
func WithPatchVerification(enabled bool) ReviewerOption {
	return func(r *Reviewer) {
		r.verifyPatch = enabled
	}
}

// NewReviewer creates a new reviewer
func NewReviewer(opts ...ReviewerOption) *Reviewer {
	r := &Reviewer{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// VerifiesPatches reports whether patch verification is enabled
func (r *Reviewer) VerifiesPatches() bool {
	return r.verifyPatch
}

// Review parses and validates body, then decides on the mutation.
//
// The returned error is non-nil only for ErrInvalidJSON and
// ErrInvalidAdmissionReview. Any other failure is folded into a Decision
// with OutcomeRecovered, so admission is never denied.
func (r *Reviewer) Review(ctx context.Context, body []byte) (Decision, error) {
	logger := log.FromContext(ctx)

	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Error(err, "Failed to parse request body", "contentLength", len(body))
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if !IsValidAdmissionReview(payload) {
		logger.Info("Rejecting malformed AdmissionReview", "body", summarizeEnvelope(payload))
		return Decision{}, ErrInvalidAdmissionReview
	}

	var envelope struct {
		Request json.RawMessage `json:"request"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalidAdmissionReview, err)
	}

	return r.decide(ctx, envelope.Request), nil
}

func (r *Reviewer) decide(ctx context.Context, rawRequest json.RawMessage) (decision Decision) {
	uid := peekUID(rawRequest)
	logger := log.FromContext(ctx).WithValues("uid", uid)

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			logger.Error(err, "Mutation failed")
			decision = recovered(uid, err)
		}
	}()

	var req apis.AdmissionRequest
	if len(rawRequest) > 0 {
		if err := json.Unmarshal(rawRequest, &req); err != nil {
			logger.Error(err, "Failed to decode admission request")
			return recovered(uid, fmt.Errorf("decode admission request: %w", err))
		}
	}

	if !IsPodCreate(&req) {
		logger.Info("Not a Pod CREATE, skipping", "kind", req.GetKind(), "operation", req.GetOperation())
		return Decision{UID: uid, Outcome: OutcomeSkipped, Message: MessageSkipped}
	}

	pod, err := req.DecodeObject()
	if err != nil {
		logger.Error(err, "Failed to decode admitted pod")
		return recovered(uid, fmt.Errorf("decode admission request: %w", err))
	}

	metadata := pod.GetMetadata()
	logger.Info("Processing admission request",
		"kind", req.GetKind(),
		"operation", req.GetOperation(),
		"pod", metadata.GetName(),
		"labels", metadata.GetLabels().Strings(),
		"annotations", metadata.GetAnnotations().Strings(),
	)

	if !IsOptedIn(pod) {
		logger.Info("Mutation criteria not met, skipping")
		return Decision{UID: uid, Outcome: OutcomeSkipped, Message: MessageSkipped}
	}

	patch := BuildPatch(pod)
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		logger.Error(err, "Failed to encode patch")
		return recovered(uid, fmt.Errorf("encode patch: %w", err))
	}

	if r.verifyPatch {
		if err := verifyPatch(rawRequest, patchJSON); err != nil {
			logger.Error(err, "Generated patch does not apply to the admitted pod")
			return recovered(uid, err)
		}
	}

	logger.Info("Mutation criteria met, patch generated", "operations", len(patch))
	if debug := logger.V(1); debug.Enabled() {
		for i, op := range patch {
			debug.Info("Patch operation", "index", i, "op", op.Operation, "path", op.Path)
		}
	}

	return Decision{
		UID:       uid,
		Outcome:   OutcomeMutated,
		Message:   MessageMutated,
		Patch:     patch,
		patchJSON: patchJSON,
	}
}

func recovered(uid types.UID, err error) Decision {
	return Decision{
		UID:     uid,
		Outcome: OutcomeRecovered,
		Message: recoveredMessagePrefix + err.Error(),
	}
}

// verifyPatch applies patchJSON to the object of rawRequest
func verifyPatch(rawRequest json.RawMessage, patchJSON []byte) error {
	var request struct {
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(rawRequest, &request); err != nil {
		return fmt.Errorf("decode admitted object: %w", err)
	}

	patch, err := jsonpatchv5.DecodePatch(patchJSON)
	if err != nil {
		return fmt.Errorf("decode patch: %w", err)
	}
	if _, err := patch.Apply(request.Object); err != nil {
		return fmt.Errorf("patch does not apply: %w", err)
	}
	return nil
}

// peekUID extracts request.uid without decoding the rest of the request, so
// that the UID is echoed even when the request is otherwise malformed.
func peekUID(rawRequest json.RawMessage) types.UID {
	var request struct {
		UID types.UID `json:"uid"`
	}
	if err := json.Unmarshal(rawRequest, &request); err != nil {
		return ""
	}
	return request.UID
}

func summarizeEnvelope(payload interface{}) map[string]interface{} {
	review, ok := payload.(map[string]interface{})
	if !ok {
		return map[string]interface{}{"type": fmt.Sprintf("%T", payload)}
	}
	_, hasRequest := review["request"]
	return map[string]interface{}{
		"apiVersion": review["apiVersion"],
		"kind":       review["kind"],
		"hasRequest": hasRequest,
	}
}
