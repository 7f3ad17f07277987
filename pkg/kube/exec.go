package kube

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/nimbolus/vault-mgmt/pkg/secret"
)

// ExecShell attaches a shell to the named member pod, runs cmd with the given
// environment prepended and returns the captured stdout and stderr. Secret env
// values only travel over the attach stream, never through the pod spec.
func ExecShell(ctx context.Context, cfg *rest.Config, cs kubernetes.Interface, namespace, pod, cmd string, env map[string]secret.Secret) (string, string, error) {
	req := cs.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Command: []string{"sh"},
			Stdin:   true,
			Stdout:  true,
			Stderr:  true,
		}, runtime.NewParameterCodec(scheme.Scheme))

	executor, err := remotecommand.NewSPDYExecutor(cfg, "POST", req.URL())
	if err != nil {
		return "", "", fmt.Errorf("creating executor for pod %s: %w", pod, err)
	}

	var stdout, stderr bytes.Buffer
	if err := executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  strings.NewReader(shellInput(cmd, env)),
		Stdout: &stdout,
		Stderr: &stderr,
	}); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("executing in pod %s: %w", pod, err)
	}

	return stdout.String(), stderr.String(), nil
}

// shellInput builds the script fed to the attached shell: env assignments
// prefix the command and a trailing exit ends the session.
func shellInput(cmd string, env map[string]secret.Secret) string {
	var b strings.Builder
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(env[k].Expose())
		b.WriteString(" ")
	}
	b.WriteString(cmd)
	b.WriteString("\nexit\n")
	return b.String()
}
