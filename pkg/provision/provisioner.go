// Package provision wraps kubectl and helm behind idempotent adapters
// and the Provisioner facade the reconciler depends on.
package provision

import (
	"context"

	"github.com/wisbric/launchpad/internal/proc"
)

// Provisioner is the reconciler's handle on cluster operations. Tests
// inject a recording fake.
type Provisioner interface {
	EnsureNamespace(ctx context.Context, name string) (NamespaceResult, error)
	DeleteNamespace(ctx context.Context, name string) (NamespaceResult, error)
	NamespaceExists(ctx context.Context, name string) (bool, error)
	NamespaceTerminating(ctx context.Context, name string) (bool, error)
	UpgradeInstall(ctx context.Context, p UpgradeInstallParams) (ReleaseResult, error)
	Uninstall(ctx context.Context, release, namespace string, timeoutSec int, wait bool) (ReleaseResult, error)
	ReleaseStatus(ctx context.Context, release, namespace string) (ReleaseStatusResult, error)
}

// CLIProvisioner composes the kubectl and helm adapters.
type CLIProvisioner struct {
	*KubeAdapter
	*HelmAdapter
}

// NewCLIProvisioner builds a provisioner over the external tools. A
// nil runner uses the real binaries on PATH.
func NewCLIProvisioner(runner proc.Runner) *CLIProvisioner {
	return &CLIProvisioner{
		KubeAdapter: NewKubeAdapter(runner),
		HelmAdapter: NewHelmAdapter(runner),
	}
}

var _ Provisioner = (*CLIProvisioner)(nil)
