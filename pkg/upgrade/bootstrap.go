package upgrade

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/nimbolus/vault-mgmt/pkg/engine"
	"github.com/nimbolus/vault-mgmt/pkg/kube"
)

// Bootstrap initializes a fresh cluster: member 0 is initialized and
// unsealed, every other member joins the consensus group via member 0's API
// address and is unsealed with the produced keys. Per-member readiness is
// awaited in parallel. The returned result carries the unseal keys and root
// token; the caller owns them.
func (r *Runner) Bootstrap(ctx context.Context, workload, leaderAPIAddr string) (*engine.InitResult, error) {
	sts, err := r.Client.AppsV1().StatefulSets(r.Namespace).Get(ctx, workload, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting workload %s: %w", workload, err)
	}
	replicas := int32(1)
	if sts.Spec.Replicas != nil {
		replicas = *sts.Spec.Replicas
	}

	first := fmt.Sprintf("%s-0", workload)
	r.logger.Info().Str("member", first).Msg("initializing cluster")

	client, err := r.openWithRetry(ctx, first)
	if err != nil {
		return nil, err
	}
	result, err := client.Init(ctx, engine.DefaultInitRequest())
	if err != nil {
		return nil, fmt.Errorf("initializing %s: %w", first, err)
	}

	if err := client.Unseal(ctx, result.Keys); err != nil {
		return nil, fmt.Errorf("unsealing %s: %w", first, err)
	}

	for i := int32(1); i < replicas; i++ {
		name := fmt.Sprintf("%s-%d", workload, i)
		r.logger.Info().Str("member", name).Str("leader", leaderAPIAddr).Msg("joining member")

		client, err := r.openWithRetry(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := client.RaftJoin(ctx, leaderAPIAddr); err != nil {
			return nil, fmt.Errorf("joining %s: %w", name, err)
		}
		if err := client.Unseal(ctx, result.Keys); err != nil {
			return nil, fmt.Errorf("unsealing %s: %w", name, err)
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	for i := int32(0); i < replicas; i++ {
		name := fmt.Sprintf("%s-%d", workload, i)
		group.Go(func() error {
			if err := kube.AwaitPod(ctx, r.Client, r.Namespace, name, kube.PodExportsSealStatus(r.Flavor)); err != nil {
				return err
			}
			return kube.AwaitPod(ctx, r.Client, r.Namespace, name, kube.PodUnsealed(r.Flavor))
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("waiting for members after bootstrap: %w", err)
	}

	return result, nil
}
