package kube

import (
	"errors"
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// ErrMissingImage reports a pod or workload whose first container has no image
// reference.
var ErrMissingImage = errors.New("container has no image")

// ErrMissingTag reports an image reference without a tag.
var ErrMissingTag = errors.New("image has no tag")

// Version is the tag part of a container image reference. Two versions are
// equal iff their tag strings are byte-equal; no semver ordering is implied.
type Version string

// PodVersion extracts the version a member pod is running from its first
// container's image reference.
func PodVersion(pod *corev1.Pod) (Version, error) {
	if len(pod.Spec.Containers) == 0 {
		return "", fmt.Errorf("pod %s has no containers", pod.Name)
	}
	v, err := versionFromImage(pod.Spec.Containers[0].Image)
	if err != nil {
		return "", fmt.Errorf("pod %s: %w", pod.Name, err)
	}
	return v, nil
}

// WorkloadVersion extracts the target version from the workload's pod
// template.
func WorkloadVersion(sts *appsv1.StatefulSet) (Version, error) {
	containers := sts.Spec.Template.Spec.Containers
	if len(containers) == 0 {
		return "", fmt.Errorf("workload %s has no template containers", sts.Name)
	}
	v, err := versionFromImage(containers[0].Image)
	if err != nil {
		return "", fmt.Errorf("workload %s: %w", sts.Name, err)
	}
	return v, nil
}

// IsCurrent reports whether the pod already runs the target version.
func IsCurrent(pod *corev1.Pod, target Version) (bool, error) {
	v, err := PodVersion(pod)
	if err != nil {
		return false, err
	}
	return v == target, nil
}

func versionFromImage(image string) (Version, error) {
	if image == "" {
		return "", ErrMissingImage
	}
	_, tag, found := strings.Cut(image, ":")
	if !found {
		return "", fmt.Errorf("%w: %s", ErrMissingTag, image)
	}
	return Version(tag), nil
}
