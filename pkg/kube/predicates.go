package kube

import (
	"errors"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/nimbolus/vault-mgmt/pkg/flavor"
)

// ErrNoLabels reports a member pod without a label mapping.
var ErrNoLabels = errors.New("member has no labels")

// ErrMissingLabel reports a member pod lacking a required label.
var ErrMissingLabel = errors.New("member is missing label")

// labelBool reads a required "true"/"false" label. An absent label mapping or
// label key is a labeling error; any other value is treated as false.
func labelBool(pod *corev1.Pod, key string) (bool, error) {
	if pod == nil {
		return false, nil
	}
	if pod.Labels == nil {
		return false, fmt.Errorf("%w: %s", ErrNoLabels, pod.Name)
	}
	value, ok := pod.Labels[key]
	if !ok {
		return false, fmt.Errorf("%w %s: %s", ErrMissingLabel, key, pod.Name)
	}
	return value == "true", nil
}

// Sealed reports whether the member is sealed according to its labels.
func Sealed(pod *corev1.Pod, f flavor.Flavor) (bool, error) {
	return labelBool(pod, f.SealedLabel())
}

// Active reports whether the member is the active replica according to its
// labels.
func Active(pod *corev1.Pod, f flavor.Flavor) (bool, error) {
	return labelBool(pod, f.ActiveLabel())
}

// Initialized reports whether the member has ever been initialized according
// to its labels.
func Initialized(pod *corev1.Pod, f flavor.Flavor) (bool, error) {
	return labelBool(pod, f.InitializedLabel())
}

// PodCondition is a predicate over a member pod snapshot. The pod is nil once
// the member has been deleted; conditions must treat that as "does not hold"
// so that negated conditions hold for a deleted member.
type PodCondition func(pod *corev1.Pod) bool

// Not inverts a pod condition.
func Not(cond PodCondition) PodCondition {
	return func(pod *corev1.Pod) bool {
		return !cond(pod)
	}
}

// PodSealed holds while the member's seal label is "true".
func PodSealed(f flavor.Flavor) PodCondition {
	return podLabelTrue(f.SealedLabel())
}

// PodUnsealed holds while the member's seal label is anything but "true".
func PodUnsealed(f flavor.Flavor) PodCondition {
	return Not(PodSealed(f))
}

// PodActive holds while the member's leadership label is "true".
func PodActive(f flavor.Flavor) PodCondition {
	return podLabelTrue(f.ActiveLabel())
}

// PodStandby holds while the member is not the active replica.
func PodStandby(f flavor.Flavor) PodCondition {
	return Not(PodActive(f))
}

// PodExportsSealStatus holds once the engine's helper has written the seal
// label at all, regardless of value.
func PodExportsSealStatus(f flavor.Flavor) PodCondition {
	key := f.SealedLabel()
	return func(pod *corev1.Pod) bool {
		if pod == nil || pod.Labels == nil {
			return false
		}
		_, ok := pod.Labels[key]
		return ok
	}
}

// PodRunning holds while the pod phase is Running.
func PodRunning() PodCondition {
	return func(pod *corev1.Pod) bool {
		if pod == nil || pod.Status.Phase == "" {
			return false
		}
		return pod.Status.Phase == corev1.PodRunning
	}
}

// PodReady holds while the pod's Ready condition is True.
func PodReady() PodCondition {
	return func(pod *corev1.Pod) bool {
		if pod == nil {
			return false
		}
		for _, cond := range pod.Status.Conditions {
			if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
				return true
			}
		}
		return false
	}
}

func podLabelTrue(key string) PodCondition {
	return func(pod *corev1.Pod) bool {
		if pod == nil || pod.Labels == nil {
			return false
		}
		return pod.Labels[key] == "true"
	}
}

// WorkloadCondition is a predicate over a workload snapshot, nil once deleted.
type WorkloadCondition func(sts *appsv1.StatefulSet) bool

// WorkloadReady holds while every desired replica is ready and available.
func WorkloadReady() WorkloadCondition {
	return func(sts *appsv1.StatefulSet) bool {
		if sts == nil {
			return false
		}
		status := sts.Status
		if status.ReadyReplicas != status.Replicas || status.AvailableReplicas != status.Replicas {
			return false
		}
		if sts.Spec.Replicas != nil && status.Replicas != *sts.Spec.Replicas {
			return false
		}
		return true
	}
}

// WorkloadUpdated holds while every replica runs the current template revision.
func WorkloadUpdated() WorkloadCondition {
	return func(sts *appsv1.StatefulSet) bool {
		if sts == nil {
			return false
		}
		return sts.Status.UpdatedReplicas == sts.Status.Replicas
	}
}
