package kube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/nimbolus/vault-mgmt/pkg/flavor"
)

func memberPod(labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:   "vault-0",
			Labels: labels,
		},
	}
}

func TestSealed(t *testing.T) {
	sealed, err := Sealed(memberPod(map[string]string{"vault-sealed": "true"}), flavor.Vault)
	require.NoError(t, err)
	assert.True(t, sealed)

	sealed, err = Sealed(memberPod(map[string]string{"vault-sealed": "false"}), flavor.Vault)
	require.NoError(t, err)
	assert.False(t, sealed)
}

func TestSealedFailsWithoutLabels(t *testing.T) {
	_, err := Sealed(memberPod(nil), flavor.Vault)
	assert.ErrorIs(t, err, ErrNoLabels)

	_, err = Sealed(memberPod(map[string]string{"other": "x"}), flavor.Vault)
	assert.ErrorIs(t, err, ErrMissingLabel)
}

func TestSealedUnparseableValueIsFalse(t *testing.T) {
	sealed, err := Sealed(memberPod(map[string]string{"vault-sealed": "maybe"}), flavor.Vault)
	require.NoError(t, err)
	assert.False(t, sealed)
}

func TestInitialized(t *testing.T) {
	initialized, err := Initialized(memberPod(map[string]string{"vault-initialized": "true"}), flavor.Vault)
	require.NoError(t, err)
	assert.True(t, initialized)

	// absent member holds no state
	initialized, err = Initialized(nil, flavor.Vault)
	require.NoError(t, err)
	assert.False(t, initialized)
}

func TestActiveUsesFlavorLabel(t *testing.T) {
	active, err := Active(memberPod(map[string]string{"openbao-active": "true"}), flavor.OpenBao)
	require.NoError(t, err)
	assert.True(t, active)

	_, err = Active(memberPod(map[string]string{"vault-active": "true"}), flavor.OpenBao)
	assert.ErrorIs(t, err, ErrMissingLabel)
}

func TestPodConditionsAreNilSafe(t *testing.T) {
	assert.False(t, PodSealed(flavor.Vault)(nil))
	assert.False(t, PodActive(flavor.Vault)(nil))
	assert.False(t, PodRunning()(nil))
	assert.False(t, PodReady()(nil))
	assert.False(t, PodExportsSealStatus(flavor.Vault)(nil))

	// negated conditions hold for a deleted member
	assert.True(t, PodUnsealed(flavor.Vault)(nil))
	assert.True(t, PodStandby(flavor.Vault)(nil))
}

func TestPodSealed(t *testing.T) {
	assert.True(t, PodSealed(flavor.Vault)(memberPod(map[string]string{"vault-sealed": "true"})))
	assert.False(t, PodSealed(flavor.Vault)(memberPod(map[string]string{"vault-sealed": "false"})))
	assert.False(t, PodSealed(flavor.Vault)(memberPod(nil)))
}

func TestPodExportsSealStatus(t *testing.T) {
	assert.True(t, PodExportsSealStatus(flavor.Vault)(memberPod(map[string]string{"vault-sealed": "false"})))
	assert.False(t, PodExportsSealStatus(flavor.Vault)(memberPod(map[string]string{"other": "x"})))
}

func TestPodRunning(t *testing.T) {
	pod := memberPod(nil)
	pod.Status.Phase = corev1.PodRunning
	assert.True(t, PodRunning()(pod))

	pod.Status.Phase = corev1.PodPending
	assert.False(t, PodRunning()(pod))
}

func TestPodReady(t *testing.T) {
	pod := memberPod(nil)
	pod.Status.Conditions = []corev1.PodCondition{
		{Type: corev1.PodScheduled, Status: corev1.ConditionTrue},
		{Type: corev1.PodReady, Status: corev1.ConditionFalse},
	}
	assert.False(t, PodReady()(pod))

	pod.Status.Conditions[1].Status = corev1.ConditionTrue
	assert.True(t, PodReady()(pod))
}

func workload(replicas, ready, available, updated int32) *appsv1.StatefulSet {
	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Name: "vault"},
		Spec:       appsv1.StatefulSetSpec{Replicas: &replicas},
		Status: appsv1.StatefulSetStatus{
			Replicas:          replicas,
			ReadyReplicas:     ready,
			AvailableReplicas: available,
			UpdatedReplicas:   updated,
		},
	}
}

func TestWorkloadReady(t *testing.T) {
	assert.True(t, WorkloadReady()(workload(3, 3, 3, 3)))
	assert.False(t, WorkloadReady()(workload(3, 2, 3, 3)))
	assert.False(t, WorkloadReady()(workload(3, 3, 2, 3)))
	assert.False(t, WorkloadReady()(nil))
}

func TestWorkloadUpdated(t *testing.T) {
	assert.True(t, WorkloadUpdated()(workload(3, 3, 3, 3)))
	assert.False(t, WorkloadUpdated()(workload(3, 3, 3, 1)))
}
