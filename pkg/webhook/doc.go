/*
Package webhook implements the pod injection admission logic.

The package is transport agnostic: it receives raw AdmissionReview bodies
and returns decisions. HTTP serving lives in internal/server.

# Core Components

Validator functions:
  - IsValidAdmissionReview checks the envelope (apiVersion, kind, request key)
  - ShouldMutate checks kind, operation, opt-in label/annotation and the
    version and labid labels

BuildPatch produces the JSON patch for an opted-in pod:
  - env vars HELP, MUTATE, ACCEPTED, VERSION, LABID appended to every container
  - a /tmp mount of the tmp-shared volume in every container
  - the init-download init container fetching the versioned artifact
  - the tmp-shared emptyDir volume

Reviewer ties them together and returns a Decision:

	reviewer := webhook.NewReviewer(webhook.WithPatchVerification(false))
	decision, err := reviewer.Review(ctx, body)
	if errors.Is(err, webhook.ErrInvalidJSON) {
		// answer 400
	}
	review := decision.Review() // always allowed

# Patch Ordering

Operations are emitted container by container, then the init container, then
the volume. For a container without env and volumeMounts:

	add /spec/containers/0/env            []
	add /spec/containers/0/volumeMounts   []
	add /spec/containers/0/env/-          HELP=YES
	add /spec/containers/0/env/-          MUTATE=true
	add /spec/containers/0/env/-          ACCEPTED=yes
	add /spec/containers/0/env/-          VERSION=<labels.version>
	add /spec/containers/0/env/-          LABID=<labels.labid>
	add /spec/containers/0/volumeMounts/- tmp-shared:/tmp
	add /spec/initContainers              [init-download]
	add /spec/volumes                     [tmp-shared]

Lists that already exist are appended to with "/-" instead of created.

# Error Handling

The webhook fails open. Only a body that is not JSON or not an
AdmissionReview is rejected; everything else, including faults while
building the patch, yields an allowed response. Faults are reported in
status.message as "Mutation webhook error: <cause>".

# TLS Certificates

CertificateWatcher serves the key pair through tls.Config.GetCertificate and
reloads it when the mounted secret changes.
*/
package webhook
