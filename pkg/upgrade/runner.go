package upgrade

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"

	"github.com/nimbolus/vault-mgmt/pkg/engine"
	"github.com/nimbolus/vault-mgmt/pkg/flavor"
	"github.com/nimbolus/vault-mgmt/pkg/kube"
	"github.com/nimbolus/vault-mgmt/pkg/log"
	"github.com/nimbolus/vault-mgmt/pkg/metrics"
)

// OpenFunc opens an engine channel to the named member pod.
type OpenFunc func(ctx context.Context, pod string) (engine.Sender, error)

// openBackoff bounds channel opens against a freshly restarted member, whose
// listening socket races the platform's readiness signal.
var openBackoff = wait.Backoff{
	Steps:    5,
	Duration: 50 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
}

// Runner drives rolling upgrades of one engine cluster.
type Runner struct {
	Client    kubernetes.Interface
	Namespace string
	Flavor    flavor.Flavor
	Open      OpenFunc

	logger zerolog.Logger
}

// New returns a runner for the cluster in the given namespace.
func New(client kubernetes.Interface, namespace string, f flavor.Flavor, open OpenFunc) *Runner {
	return &Runner{
		Client:    client,
		Namespace: namespace,
		Flavor:    f,
		Open:      open,
		logger:    log.WithComponent("upgrade"),
	}
}

// open opens a channel without retries, for members known to be serving.
func (r *Runner) open(ctx context.Context, pod string) (*engine.Client, error) {
	sender, err := r.Open(ctx, pod)
	if err != nil {
		return nil, fmt.Errorf("opening channel to %s: %w", pod, err)
	}
	return engine.NewClient(sender, r.Flavor), nil
}

// openWithRetry opens a channel with bounded backoff, for members that just
// restarted.
func (r *Runner) openWithRetry(ctx context.Context, pod string) (*engine.Client, error) {
	var sender engine.Sender
	err := retry.OnError(openBackoff, func(error) bool { return ctx.Err() == nil }, func() error {
		var err error
		sender, err = r.Open(ctx, pod)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("opening channel to %s: retries exhausted: %w", pod, err)
	}
	return engine.NewClient(sender, r.Flavor), nil
}

// Member drives one member through the upgrade procedure:
//
//   - if the member is outdated (or force is set)
//   - step down first when it is the active replica, and wait for a
//     standby to take over
//   - delete the pod, wait for it to be gone, wait for the replacement
//     to run
//   - await an initialized seal status over a fresh channel
//   - if the member now runs the target version and is sealed, submit the
//     unseal keys (when unsealing is enabled)
//   - wait until the member is unsealed and ready
func (r *Runner) Member(ctx context.Context, pod *corev1.Pod, target kube.Version, opts Options) error {
	name := pod.Name
	if name == "" {
		return fmt.Errorf("member pod has no name")
	}
	logger := r.logger.With().Str("member", name).Logger()

	current, err := kube.IsCurrent(pod, target)
	if err != nil {
		return fmt.Errorf("checking version of %s: %w", name, err)
	}

	if !current || opts.Force {
		active, err := kube.Active(pod, r.Flavor)
		if err != nil {
			return fmt.Errorf("checking leadership of %s: %w", name, err)
		}

		if active {
			logger.Info().Msg("stepping down active member")
			client, err := r.open(ctx, name)
			if err != nil {
				return err
			}
			if err := client.StepDown(ctx, opts.Token); err != nil {
				return fmt.Errorf("stepping down %s: %w", name, err)
			}
			if err := kube.AwaitPod(ctx, r.Client, r.Namespace, name, kube.PodStandby(r.Flavor)); err != nil {
				return fmt.Errorf("waiting for %s to lose leadership: %w", name, err)
			}
		}

		logger.Info().Str("target", string(target)).Msg("deleting member for upgrade")
		if err := r.Client.CoreV1().Pods(r.Namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
			return fmt.Errorf("deleting %s: %w", name, err)
		}
		metrics.MemberDeletesTotal.Inc()

		if err := kube.AwaitPodGone(ctx, r.Client, r.Namespace, name, pod.UID); err != nil {
			return err
		}

		logger.Debug().Msg("waiting for replacement member to run")
		if err := kube.AwaitPod(ctx, r.Client, r.Namespace, name, kube.PodRunning()); err != nil {
			return err
		}
	}

	client, err := r.openWithRetry(ctx, name)
	if err != nil {
		return err
	}

	logger.Debug().Msg("waiting for member to report initialized")
	if _, err := client.AwaitSealStatus(ctx, engine.SealStatusInitialized); err != nil {
		return fmt.Errorf("waiting for %s to report initialized: %w", name, err)
	}

	fresh, err := r.Client.CoreV1().Pods(r.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("getting %s after restart: %w", name, err)
	}

	current, err = kube.IsCurrent(fresh, target)
	if err != nil {
		return fmt.Errorf("checking version of %s: %w", name, err)
	}
	if current {
		sealed, err := kube.Sealed(fresh, r.Flavor)
		if err != nil {
			return fmt.Errorf("checking seal state of %s: %w", name, err)
		}
		if sealed && opts.Unseal {
			logger.Info().Msg("unsealing member")
			if err := client.Unseal(ctx, opts.Keys); err != nil {
				return fmt.Errorf("unsealing %s: %w", name, err)
			}
		}
	}

	logger.Debug().Msg("waiting for member to be unsealed")
	if err := kube.AwaitPod(ctx, r.Client, r.Namespace, name, kube.PodUnsealed(r.Flavor)); err != nil {
		return err
	}

	logger.Debug().Msg("waiting for member to be ready")
	if err := kube.AwaitPod(ctx, r.Client, r.Namespace, name, kube.PodReady()); err != nil {
		return err
	}

	metrics.MemberUpgradesTotal.Inc()
	logger.Info().Msg("member upgraded")
	return nil
}

// Cluster performs the rolling upgrade: every standby first, then the active
// member, so the cluster never loses its only leader to a deletion.
func (r *Runner) Cluster(ctx context.Context, workload string, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	sts, err := r.Client.AppsV1().StatefulSets(r.Namespace).Get(ctx, workload, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("getting workload %s: %w", workload, err)
	}

	target, err := kube.WorkloadVersion(sts)
	if err != nil {
		return err
	}

	standby, err := r.listMembers(ctx, r.Flavor.ActiveSelector(false))
	if err != nil {
		return err
	}
	if len(standby) == 0 {
		r.logger.Warn().Msg("no standby members found, skipping upgrade")
		return nil
	}

	active, err := r.listMembers(ctx, r.Flavor.ActiveSelector(true))
	if err != nil {
		return err
	}
	if len(active) == 0 {
		r.logger.Warn().Msg("no active member found, skipping upgrade")
		return nil
	}

	r.logger.Info().Str("target", string(target)).Msg("upgrading standby members")
	for i := range standby {
		if err := r.Member(ctx, &standby[i], target, opts); err != nil {
			return fmt.Errorf("upgrading standby %s: %w", standby[i].Name, err)
		}
	}

	r.logger.Info().Str("target", string(target)).Msg("upgrading active member")
	for i := range active {
		if err := r.Member(ctx, &active[i], target, opts); err != nil {
			return fmt.Errorf("upgrading active %s: %w", active[i].Name, err)
		}
	}

	return nil
}

func (r *Runner) listMembers(ctx context.Context, selectors ...string) ([]corev1.Pod, error) {
	selector := r.Flavor.NameSelector()
	for _, s := range selectors {
		selector += "," + s
	}
	list, err := r.Client.CoreV1().Pods(r.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("listing members (%s): %w", selector, err)
	}
	return list.Items, nil
}
