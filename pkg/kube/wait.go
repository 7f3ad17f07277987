package kube

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
	watchtools "k8s.io/client-go/tools/watch"
)

// AwaitPod watches the named member pod until cond holds. A deletion event
// evaluates cond against nil, so negated conditions complete when the pod
// disappears. Cancelling ctx terminates the wait.
func AwaitPod(ctx context.Context, cs kubernetes.Interface, namespace, name string, cond PodCondition) error {
	lw := podListWatch(ctx, cs, namespace, name)

	precondition := func(store cache.Store) (bool, error) {
		obj, exists, err := store.GetByKey(namespace + "/" + name)
		if err != nil {
			return false, err
		}
		if !exists {
			return cond(nil), nil
		}
		pod, ok := obj.(*corev1.Pod)
		if !ok {
			return false, nil
		}
		return cond(pod), nil
	}

	_, err := watchtools.UntilWithSync(ctx, lw, &corev1.Pod{}, precondition, func(event watch.Event) (bool, error) {
		switch event.Type {
		case watch.Error:
			return false, apierrors.FromObject(event.Object)
		case watch.Deleted:
			return cond(nil), nil
		default:
			pod, ok := event.Object.(*corev1.Pod)
			if !ok || pod.Name != name {
				return false, nil
			}
			return cond(pod), nil
		}
	})
	if err != nil {
		return fmt.Errorf("waiting on pod %s: %w", name, err)
	}
	return nil
}

// AwaitPodGone watches until the pod identified by name and uid no longer
// exists. A pod reappearing under the same name with a different uid counts as
// gone: the statefulset has already replaced it.
func AwaitPodGone(ctx context.Context, cs kubernetes.Interface, namespace, name string, uid types.UID) error {
	lw := podListWatch(ctx, cs, namespace, name)

	gone := func(pod *corev1.Pod) bool {
		return pod == nil || (uid != "" && pod.UID != uid)
	}

	precondition := func(store cache.Store) (bool, error) {
		obj, exists, err := store.GetByKey(namespace + "/" + name)
		if err != nil {
			return false, err
		}
		if !exists {
			return true, nil
		}
		pod, ok := obj.(*corev1.Pod)
		return ok && gone(pod), nil
	}

	_, err := watchtools.UntilWithSync(ctx, lw, &corev1.Pod{}, precondition, func(event watch.Event) (bool, error) {
		switch event.Type {
		case watch.Error:
			return false, apierrors.FromObject(event.Object)
		case watch.Deleted:
			return true, nil
		default:
			pod, ok := event.Object.(*corev1.Pod)
			if !ok || pod.Name != name {
				return false, nil
			}
			return gone(pod), nil
		}
	})
	if err != nil {
		return fmt.Errorf("waiting for pod %s to be deleted: %w", name, err)
	}
	return nil
}

// AwaitWorkload watches the named workload until cond holds.
func AwaitWorkload(ctx context.Context, cs kubernetes.Interface, namespace, name string, cond WorkloadCondition) error {
	selector := fields.OneTermEqualSelector("metadata.name", name).String()
	lw := &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			options.FieldSelector = selector
			return cs.AppsV1().StatefulSets(namespace).List(ctx, options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			options.FieldSelector = selector
			return cs.AppsV1().StatefulSets(namespace).Watch(ctx, options)
		},
	}

	precondition := func(store cache.Store) (bool, error) {
		obj, exists, err := store.GetByKey(namespace + "/" + name)
		if err != nil {
			return false, err
		}
		if !exists {
			return cond(nil), nil
		}
		sts, ok := obj.(*appsv1.StatefulSet)
		if !ok {
			return false, nil
		}
		return cond(sts), nil
	}

	_, err := watchtools.UntilWithSync(ctx, lw, &appsv1.StatefulSet{}, precondition, func(event watch.Event) (bool, error) {
		switch event.Type {
		case watch.Error:
			return false, apierrors.FromObject(event.Object)
		case watch.Deleted:
			return cond(nil), nil
		default:
			sts, ok := event.Object.(*appsv1.StatefulSet)
			if !ok || sts.Name != name {
				return false, nil
			}
			return cond(sts), nil
		}
	})
	if err != nil {
		return fmt.Errorf("waiting on workload %s: %w", name, err)
	}
	return nil
}

func podListWatch(ctx context.Context, cs kubernetes.Interface, namespace, name string) *cache.ListWatch {
	selector := fields.OneTermEqualSelector("metadata.name", name).String()
	return &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			options.FieldSelector = selector
			return cs.CoreV1().Pods(namespace).List(ctx, options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			options.FieldSelector = selector
			return cs.CoreV1().Pods(namespace).Watch(ctx, options)
		},
	}
}
