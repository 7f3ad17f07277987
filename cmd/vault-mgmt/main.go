package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/nimbolus/vault-mgmt/pkg/engine"
	"github.com/nimbolus/vault-mgmt/pkg/flavor"
	"github.com/nimbolus/vault-mgmt/pkg/forward"
	"github.com/nimbolus/vault-mgmt/pkg/log"
	"github.com/nimbolus/vault-mgmt/pkg/metrics"
	"github.com/nimbolus/vault-mgmt/pkg/secret"
	"github.com/nimbolus/vault-mgmt/pkg/upgrade"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vault-mgmt",
	Short: "Manage a Vault or OpenBao installation in Kubernetes",
	Long: `vault-mgmt inspects and operates a clustered secrets engine running
as a statefulset: show member state, exec into members, step down the
leader, unseal sealed members, bootstrap a fresh cluster and perform
zero-downtime rolling upgrades.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"vault-mgmt version %s\nCommit: %s\n", Version, Commit,
	))

	rootCmd.PersistentFlags().StringP("namespace", "n", "vault", "Namespace of the engine workload")
	rootCmd.PersistentFlags().String("workload", "vault", "Name of the engine statefulset")
	rootCmd.PersistentFlags().StringP("flavor", "f", "vault", "Engine flavor (vault, openbao)")
	rootCmd.PersistentFlags().String("kubeconfig", "", "Path to kubeconfig (defaults to in-cluster config, then $KUBECONFIG, then ~/.kube/config)")
	rootCmd.PersistentFlags().Bool("tls", false, "Talk TLS to the engine through the port-forward")
	rootCmd.PersistentFlags().String("server-name", "", "Server name for TLS certificate verification")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address for the duration of the run")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(stepDownCmd)
	rootCmd.AddCommand(unsealCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(raftJoinCmd)
	rootCmd.AddCommand(waitCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})

	if addr, _ := rootCmd.PersistentFlags().GetString("metrics-addr"); addr != "" {
		go func() {
			if err := metrics.Serve(addr); err != nil {
				log.Logger.Warn().Err(err).Msg("metrics listener failed")
			}
		}()
	}
}

// env bundles everything a subcommand needs to reach the cluster.
type env struct {
	config    *rest.Config
	clientset kubernetes.Interface
	namespace string
	workload  string
	flavor    flavor.Flavor
	runner    *upgrade.Runner
}

func setup(cmd *cobra.Command) (*env, error) {
	namespace, _ := cmd.Flags().GetString("namespace")
	workload, _ := cmd.Flags().GetString("workload")
	flavorName, _ := cmd.Flags().GetString("flavor")
	kubeconfig, _ := cmd.Flags().GetString("kubeconfig")
	useTLS, _ := cmd.Flags().GetBool("tls")
	serverName, _ := cmd.Flags().GetString("server-name")

	f, err := flavor.Parse(flavorName)
	if err != nil {
		return nil, err
	}

	if useTLS && serverName == "" {
		return nil, fmt.Errorf("--tls requires --server-name")
	}

	config, err := buildConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("loading kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}

	dialer := forward.NewSPDYDialer(config, clientset, namespace)
	open := func(ctx context.Context, pod string) (engine.Sender, error) {
		conn, err := dialer.DialPod(ctx, pod, forward.EnginePort)
		if err != nil {
			return nil, err
		}
		if useTLS {
			return forward.OpenTLS(ctx, conn, serverName)
		}
		return forward.Open(conn), nil
	}

	return &env{
		config:    config,
		clientset: clientset,
		namespace: namespace,
		workload:  workload,
		flavor:    f,
		runner:    upgrade.New(clientset, namespace, f, open),
	}, nil
}

func buildConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if config, err := rest.InClusterConfig(); err == nil {
			return config, nil
		}
		kubeconfig = os.Getenv("KUBECONFIG")
	}
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// token resolves the engine token from the flag or the flavor's environment
// variable.
func token(cmd *cobra.Command, f flavor.Flavor) (secret.Secret, error) {
	value, _ := cmd.Flags().GetString("token")
	if value == "" {
		value = os.Getenv(f.TokenEnv())
	}
	if value == "" {
		return secret.Secret{}, fmt.Errorf("no token provided and %s not set", f.TokenEnv())
	}
	return secret.New(value), nil
}

// unsealKeys resolves the unseal key sequence from the configured source:
// a local key command or a key-value path read through the active member.
func unsealKeys(cmd *cobra.Command, e *env) ([]secret.Secret, error) {
	keysCmd, _ := cmd.Flags().GetString("keys-cmd")
	keysPath, _ := cmd.Flags().GetString("keys-path")

	switch {
	case keysCmd != "" && keysPath != "":
		return nil, fmt.Errorf("--keys-cmd and --keys-path are mutually exclusive")
	case keysCmd != "":
		keys, err := engine.KeysFromCommand(cmd.Context(), keysCmd)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("no unseal keys returned from command")
		}
		for i, key := range keys {
			if key.IsBlank() {
				return nil, fmt.Errorf("%w at position %d", upgrade.ErrBlankKey, i)
			}
		}
		return keys, nil
	case keysPath != "":
		tok, err := token(cmd, e.flavor)
		if err != nil {
			return nil, err
		}
		client, pod, err := openMember(cmd.Context(), e, e.flavor.ActiveSelector(true))
		if err != nil {
			return nil, err
		}
		keys, err := client.FetchUnsealKeys(cmd.Context(), keysPath, tok)
		if err != nil {
			return nil, fmt.Errorf("fetching keys via %s: %w", pod, err)
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("no unseal keys found at %s", keysPath)
		}
		for i, key := range keys {
			if key.IsBlank() {
				return nil, fmt.Errorf("%w at position %d", upgrade.ErrBlankKey, i)
			}
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("one of --keys-cmd or --keys-path is required")
	}
}
