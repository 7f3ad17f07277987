package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/nimbolus/vault-mgmt/pkg/engine"
	"github.com/nimbolus/vault-mgmt/pkg/kube"
	"github.com/nimbolus/vault-mgmt/pkg/log"
	"github.com/nimbolus/vault-mgmt/pkg/secret"
	"github.com/nimbolus/vault-mgmt/pkg/upgrade"
)

// listMembers lists member pods matching the flavor selector plus any extra
// label selectors.
func listMembers(ctx context.Context, e *env, extra ...string) ([]corev1.Pod, error) {
	selector := e.flavor.NameSelector()
	for _, s := range extra {
		selector += "," + s
	}
	list, err := e.clientset.CoreV1().Pods(e.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("listing members (%s): %w", selector, err)
	}
	return list.Items, nil
}

// openMember opens an engine client to the first member matching the
// selector and returns it together with the member's name.
func openMember(ctx context.Context, e *env, extra ...string) (*engine.Client, string, error) {
	pods, err := listMembers(ctx, e, extra...)
	if err != nil {
		return nil, "", err
	}
	if len(pods) == 0 {
		return nil, "", fmt.Errorf("no matching %s pod found", e.flavor)
	}
	name := pods[0].Name
	sender, err := e.runner.Open(ctx, name)
	if err != nil {
		return nil, "", fmt.Errorf("opening channel to %s: %w", name, err)
	}
	return engine.NewClient(sender, e.flavor), name, nil
}

var execCmd = &cobra.Command{
	Use:   "exec -- CMD [ARG...]",
	Short: "Execute a command in a member pod",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		in, _ := cmd.Flags().GetString("in")
		selector, err := roleSelector(e, in)
		if err != nil {
			return err
		}

		envPairs, _ := cmd.Flags().GetStringArray("env")
		envKeys, _ := cmd.Flags().GetStringArray("env-key")
		execEnv, err := collectEnv(envPairs, envKeys)
		if err != nil {
			return err
		}

		pods, err := listMembers(cmd.Context(), e, selector)
		if err != nil {
			return err
		}
		if len(pods) == 0 {
			return fmt.Errorf("no matching %s pod found", e.flavor)
		}

		stdout, stderr, err := kube.ExecShell(cmd.Context(), e.config, e.clientset, e.namespace, pods[0].Name, strings.Join(args, " "), execEnv)
		fmt.Fprint(os.Stdout, stdout)
		fmt.Fprint(os.Stderr, stderr)
		return err
	},
}

func roleSelector(e *env, in string) (string, error) {
	switch in {
	case "active":
		return e.flavor.ActiveSelector(true), nil
	case "standby":
		return e.flavor.ActiveSelector(false), nil
	case "sealed":
		return e.flavor.SealedSelector(true), nil
	default:
		return "", fmt.Errorf("invalid --in value: %q (active, standby, sealed)", in)
	}
}

func collectEnv(pairs, keys []string) (map[string]secret.Secret, error) {
	env := make(map[string]secret.Secret, len(pairs)+len(keys))
	for _, key := range keys {
		value, ok := os.LookupEnv(key)
		if !ok {
			return nil, fmt.Errorf("environment variable %s not set", key)
		}
		env[key] = secret.New(value)
	}
	for _, pair := range pairs {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("invalid env pair: %q", pair)
		}
		env[k] = secret.New(v)
	}
	return env, nil
}

var stepDownCmd = &cobra.Command{
	Use:   "step-down",
	Short: "Step down the active member",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		tok, err := token(cmd, e.flavor)
		if err != nil {
			return err
		}

		client, name, err := openMember(cmd.Context(), e, e.flavor.ActiveSelector(true))
		if err != nil {
			return err
		}

		if err := client.StepDown(cmd.Context(), tok); err != nil {
			return fmt.Errorf("stepping down %s: %w", name, err)
		}
		memberLog := log.WithMember(name)
		memberLog.Info().Msg("stepped down")
		return nil
	},
}

var unsealCmd = &cobra.Command{
	Use:   "unseal",
	Short: "Unseal all sealed members",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		keys, err := unsealKeys(cmd, e)
		if err != nil {
			return err
		}

		sealed, err := listMembers(cmd.Context(), e, e.flavor.SealedSelector(true))
		if err != nil {
			return err
		}
		if len(sealed) == 0 {
			log.Info("no sealed members found")
			return nil
		}

		for i := range sealed {
			name := sealed[i].Name
			memberLog := log.WithMember(name)
			memberLog.Info().Int("keys", len(keys)).Msg("unsealing")

			sender, err := e.runner.Open(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("opening channel to %s: %w", name, err)
			}
			if err := engine.NewClient(sender, e.flavor).Unseal(cmd.Context(), keys); err != nil {
				return fmt.Errorf("unsealing %s: %w", name, err)
			}
		}
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a fresh cluster and join all members",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		leader, _ := cmd.Flags().GetString("leader")
		if leader == "" {
			leader = fmt.Sprintf("http://%s-0.%s-internal:%d", e.workload, e.workload, 8200)
		}

		result, err := e.runner.Bootstrap(cmd.Context(), e.workload, leader)
		if err != nil {
			return err
		}

		// The operator must receive the produced key material; this is the
		// only place it is ever printed.
		fmt.Printf("root token: %s\n", result.RootToken.Expose())
		for i, key := range result.Keys {
			fmt.Printf("unseal key %d: %s\n", i+1, key.Expose())
		}
		return nil
	},
}

var raftJoinCmd = &cobra.Command{
	Use:   "raft-join MEMBER",
	Short: "Join a member to the consensus group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		leader, _ := cmd.Flags().GetString("leader")
		if leader == "" {
			return fmt.Errorf("--leader is required")
		}

		sender, err := e.runner.Open(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("opening channel to %s: %w", args[0], err)
		}
		if err := engine.NewClient(sender, e.flavor).RaftJoin(cmd.Context(), leader); err != nil {
			return fmt.Errorf("joining %s: %w", args[0], err)
		}
		memberLog := log.WithMember(args[0])
		memberLog.Info().Str("leader", leader).Msg("joined consensus group")
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Do a rolling upgrade of the members without downtime",
	Long: `Upgrade the standby members first by deleting their pods and letting
the statefulset recreate them at the template version. The active member is
stepped down once every standby is back, and upgraded after a standby has
taken over leadership.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		tok, err := token(cmd, e.flavor)
		if err != nil {
			return err
		}

		shouldUnseal, _ := cmd.Flags().GetBool("should-unseal")
		force, _ := cmd.Flags().GetBool("force")

		var keys []secret.Secret
		if shouldUnseal {
			keys, err = unsealKeys(cmd, e)
			if err != nil {
				return err
			}
		}

		return e.runner.Cluster(cmd.Context(), e.workload, upgrade.Options{
			Token:  tok,
			Unseal: shouldUnseal,
			Force:  force,
			Keys:   keys,
		})
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait until the workload is ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		return kube.AwaitWorkload(cmd.Context(), e.clientset, e.namespace, e.workload, kube.WorkloadReady())
	},
}

func init() {
	execCmd.Flags().StringP("in", "i", "active", "Which member to run in (active, standby, sealed)")
	execCmd.Flags().StringArrayP("env", "e", nil, "Environment variables as key=value pairs")
	execCmd.Flags().StringArrayP("env-key", "k", nil, "Environment variables copied from the current environment")

	stepDownCmd.Flags().StringP("token", "t", "", "Engine token (defaults to the flavor's token environment variable)")

	unsealCmd.Flags().String("keys-cmd", "", "Command whose stdout lines are used as unseal keys")
	unsealCmd.Flags().String("keys-path", "", "Key-value path holding newline-separated unseal keys")
	unsealCmd.Flags().StringP("token", "t", "", "Engine token for fetching keys")

	initCmd.Flags().String("leader", "", "API address members join (defaults to member 0's internal address)")

	raftJoinCmd.Flags().String("leader", "", "API address of the consensus leader")

	upgradeCmd.Flags().StringP("token", "t", "", "Engine token for the step down")
	upgradeCmd.Flags().Bool("should-unseal", false, "Submit unseal keys to restarted members")
	upgradeCmd.Flags().Bool("force", false, "Re-roll members already at the target version")
	upgradeCmd.Flags().String("keys-cmd", "", "Command whose stdout lines are used as unseal keys")
	upgradeCmd.Flags().String("keys-path", "", "Key-value path holding newline-separated unseal keys")
}
