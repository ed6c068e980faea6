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
	"fmt"

	"gomodules.xyz/jsonpatch/v2"
	corev1 "k8s.io/api/core/v1"

	"github.com/yachiko/podinjector/pkg/apis"
)

const (
	// SharedVolumeName is the emptyDir shared between the init container and the app containers
	SharedVolumeName = "tmp-shared"

	// SharedMountPath is where the shared volume is mounted in every container
	SharedMountPath = "/tmp"

	// InitContainerName is the name of the injected download container
	InitContainerName = "init-download"

	// InitContainerImage is the image of the injected download container
	InitContainerImage = "busybox"

	artifactURLFormat = "https://repo.maven.apache.org/maven2/aws/sdk/kotlin/acmpca-jvm/%[1]s/acmpca-jvm-%[1]s-sources.jar"
	downloadTarget    = "/tmp/aws.jar"

	opAdd = "add"
)

// EnvVar is an injected environment variable. Value is always serialized,
// even when empty.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// InitContainer is the descriptor of the injected download container
type InitContainer struct {
	Name         string               `json:"name"`
	Image        string               `json:"image"`
	Command      []string             `json:"command"`
	VolumeMounts []corev1.VolumeMount `json:"volumeMounts"`
}

// BuildPatch returns the JSON patch that injects the env vars, the shared
// volume mount, the download init container and the shared volume into pod.
//
// Operations are ordered container by container in index order, then the
// init container, then the volume. The function does not modify pod and
// tolerates a nil pod or missing spec, in which case only the init container
// and volume operations are produced.
//
// Applying the result twice duplicates the env vars and mounts.
func BuildPatch(pod *apis.Pod) []jsonpatch.Operation {
	labels := pod.GetMetadata().GetLabels()
	version := labels.Get(VersionLabel)
	labID := labels.Get(LabIDLabel)

	spec := pod.GetSpec()
	containers := spec.GetContainers()

	patches := make([]jsonpatch.Operation, 0, len(containers)*8+2)
	for idx, container := range containers {
		envPath := fmt.Sprintf("/spec/containers/%d/env", idx)
		mountPath := fmt.Sprintf("/spec/containers/%d/volumeMounts", idx)

		if !container.HasEnv() {
			patches = append(patches, jsonpatch.NewOperation(opAdd, envPath, []EnvVar{}))
		}
		if !container.HasVolumeMounts() {
			patches = append(patches, jsonpatch.NewOperation(opAdd, mountPath, []corev1.VolumeMount{}))
		}

		for _, env := range injectedEnv(version, labID) {
			patches = append(patches, jsonpatch.NewOperation(opAdd, envPath+"/-", env))
		}

		patches = append(patches, jsonpatch.NewOperation(opAdd, mountPath+"/-", sharedVolumeMount()))
	}

	initContainer := downloadInitContainer(version)
	if spec.HasInitContainers() {
		patches = append(patches, jsonpatch.NewOperation(opAdd, "/spec/initContainers/-", initContainer))
	} else {
		patches = append(patches, jsonpatch.NewOperation(opAdd, "/spec/initContainers", []InitContainer{initContainer}))
	}

	if spec.HasVolumes() {
		patches = append(patches, jsonpatch.NewOperation(opAdd, "/spec/volumes/-", sharedVolume()))
	} else {
		patches = append(patches, jsonpatch.NewOperation(opAdd, "/spec/volumes", []corev1.Volume{sharedVolume()}))
	}

	return patches
}

// ArtifactURL returns the download URL of the artifact for version.
// An empty version yields a URL with empty path segments.
func ArtifactURL(version string) string {
	return fmt.Sprintf(artifactURLFormat, version)
}

func injectedEnv(version, labID string) []EnvVar {
	return []EnvVar{
		{Name: "HELP", Value: "YES"},
		{Name: "MUTATE", Value: "true"},
		{Name: "ACCEPTED", Value: "yes"},
		{Name: "VERSION", Value: version},
		{Name: "LABID", Value: labID},
	}
}

func downloadInitContainer(version string) InitContainer {
	return InitContainer{
		Name:  InitContainerName,
		Image: InitContainerImage,
		Command: []string{
			"sh", "-c",
			fmt.Sprintf("wget -O %s %s", downloadTarget, ArtifactURL(version)),
		},
		VolumeMounts: []corev1.VolumeMount{sharedVolumeMount()},
	}
}

func sharedVolumeMount() corev1.VolumeMount {
	return corev1.VolumeMount{
		MountPath: SharedMountPath,
		Name:      SharedVolumeName,
	}
}

func sharedVolume() corev1.Volume {
	return corev1.Volume{
		Name: SharedVolumeName,
		VolumeSource: corev1.VolumeSource{
			EmptyDir: &corev1.EmptyDirVolumeSource{},
		},
	}
}
