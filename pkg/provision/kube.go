package provision

import (
	"context"
	"errors"
	"strings"

	"github.com/wisbric/launchpad/internal/proc"
)

// NamespaceResult reports the outcome of an idempotent namespace
// operation.
type NamespaceResult struct {
	Name        string
	Exists      bool
	Changed     bool
	Terminating bool
}

// KubeAdapter drives namespace lifecycle operations through kubectl.
type KubeAdapter struct {
	runner proc.Runner
}

// NewKubeAdapter creates a kube adapter. A nil runner uses the real
// kubectl on PATH.
func NewKubeAdapter(runner proc.Runner) *KubeAdapter {
	return &KubeAdapter{runner: runner}
}

func notFoundIn(err *proc.CommandError) bool {
	text := strings.ToLower(err.Result.Stderr + "\n" + err.Result.Stdout)
	return strings.Contains(text, "not found")
}

// EnsureNamespace creates the namespace when absent.
func (k *KubeAdapter) EnsureNamespace(ctx context.Context, name string) (NamespaceResult, error) {
	exists, err := k.NamespaceExists(ctx, name)
	if err != nil {
		return NamespaceResult{}, err
	}
	if exists {
		return NamespaceResult{Name: name, Exists: true, Changed: false}, nil
	}

	_, err = proc.Run(ctx, k.runner,
		[]string{"kubectl", "create", "namespace", name},
		"failed to create namespace "+name)
	if err != nil {
		return NamespaceResult{}, err
	}
	return NamespaceResult{Name: name, Exists: true, Changed: true}, nil
}

// DeleteNamespace deletes the namespace, treating absence as success.
func (k *KubeAdapter) DeleteNamespace(ctx context.Context, name string) (NamespaceResult, error) {
	_, err := proc.Run(ctx, k.runner,
		[]string{"kubectl", "delete", "namespace", name, "--ignore-not-found=true"},
		"failed to delete namespace "+name)
	if err != nil {
		var cmdErr *proc.CommandError
		if errors.As(err, &cmdErr) && notFoundIn(cmdErr) {
			return NamespaceResult{Name: name, Exists: false, Changed: false}, nil
		}
		return NamespaceResult{}, err
	}
	return NamespaceResult{Name: name, Exists: false, Changed: true}, nil
}

// NamespaceExists reports whether the namespace is present.
func (k *KubeAdapter) NamespaceExists(ctx context.Context, name string) (bool, error) {
	_, err := proc.Run(ctx, k.runner,
		[]string{"kubectl", "get", "namespace", name, "-o", "name"},
		"failed to check namespace "+name)
	if err != nil {
		var cmdErr *proc.CommandError
		if errors.As(err, &cmdErr) && notFoundIn(cmdErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NamespaceTerminating reports whether the namespace phase is
// Terminating. An absent namespace is not terminating.
func (k *KubeAdapter) NamespaceTerminating(ctx context.Context, name string) (bool, error) {
	result, err := proc.Run(ctx, k.runner,
		[]string{"kubectl", "get", "namespace", name, "-o", "jsonpath={.status.phase}"},
		"failed to inspect namespace "+name)
	if err != nil {
		var cmdErr *proc.CommandError
		if errors.As(err, &cmdErr) && notFoundIn(cmdErr) {
			return false, nil
		}
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(result.Stdout), "terminating"), nil
}
