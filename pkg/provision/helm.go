package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wisbric/launchpad/internal/proc"
)

// ReleaseResult reports the outcome of a Helm release mutation.
type ReleaseResult struct {
	Release   string
	Namespace string
	Changed   bool
	Status    string
	Revision  int
}

// ReleaseStatusResult reports the observed state of a Helm release.
type ReleaseStatusResult struct {
	Release   string
	Namespace string
	Exists    bool
	Status    string
	Revision  int
	Raw       map[string]any
}

// HelmAdapter drives Helm release lifecycle operations through the
// helm CLI.
type HelmAdapter struct {
	runner proc.Runner
}

// NewHelmAdapter creates a helm adapter. A nil runner uses the real
// helm on PATH.
func NewHelmAdapter(runner proc.Runner) *HelmAdapter {
	return &HelmAdapter{runner: runner}
}

// UpgradeInstallParams parameterize a helm upgrade --install.
type UpgradeInstallParams struct {
	Release      string
	Namespace    string
	ChartRef     string
	ChartVersion string
	ChartDigest  string
	Values       map[string]any
	TimeoutSec   int
	Atomic       bool
	Wait         bool
}

// chartArg resolves the chart argument. When a digest is present and
// the ref does not already pin one, the chart is addressed by digest
// and --version is omitted.
func chartArg(chartRef, chartDigest string) (chart string, pinned bool) {
	if chartDigest == "" || strings.Contains(chartRef, "@") {
		return chartRef, false
	}
	return chartRef + "@" + chartDigest, true
}

// UpgradeInstall runs helm upgrade --install and, on success, reads
// back the release status.
func (h *HelmAdapter) UpgradeInstall(ctx context.Context, p UpgradeInstallParams) (ReleaseResult, error) {
	valuesPath, cleanup, err := writeValuesFile(p.Values)
	if err != nil {
		return ReleaseResult{}, err
	}
	defer cleanup()

	chart, pinned := chartArg(p.ChartRef, p.ChartDigest)
	argv := []string{
		"helm", "upgrade", "--install", p.Release, chart,
		"--namespace", p.Namespace,
		"--timeout", strconv.Itoa(p.TimeoutSec) + "s",
		"--values", valuesPath,
	}
	if !pinned {
		argv = append(argv, "--version", p.ChartVersion)
	}
	if strings.HasPrefix(p.ChartRef, "oci://") {
		argv = append(argv, "--plain-http")
	}
	if p.Atomic {
		argv = append(argv, "--atomic")
	}
	if p.Wait {
		argv = append(argv, "--wait")
	}

	if _, err := proc.Run(ctx, h.runner, argv, "failed to upgrade/install release "+p.Release); err != nil {
		return ReleaseResult{}, err
	}

	status, err := h.ReleaseStatus(ctx, p.Release, p.Namespace)
	if err != nil {
		return ReleaseResult{}, err
	}
	return ReleaseResult{
		Release:   p.Release,
		Namespace: p.Namespace,
		Changed:   true,
		Status:    status.Status,
		Revision:  status.Revision,
	}, nil
}

// Uninstall removes a release, treating release-not-found as an
// unchanged success.
func (h *HelmAdapter) Uninstall(ctx context.Context, release, namespace string, timeoutSec int, wait bool) (ReleaseResult, error) {
	argv := []string{
		"helm", "uninstall", release,
		"--namespace", namespace,
		"--timeout", strconv.Itoa(timeoutSec) + "s",
	}
	if wait {
		argv = append(argv, "--wait")
	}

	if _, err := proc.Run(ctx, h.runner, argv, "failed to uninstall release "+release); err != nil {
		var cmdErr *proc.CommandError
		if errors.As(err, &cmdErr) && notFoundIn(cmdErr) {
			return ReleaseResult{Release: release, Namespace: namespace, Changed: false, Status: "not-found"}, nil
		}
		return ReleaseResult{}, err
	}
	return ReleaseResult{Release: release, Namespace: namespace, Changed: true, Status: "uninstalled"}, nil
}

// ReleaseStatus reads helm status -o json. An absent release returns
// Exists=false; malformed JSON is a fatal error.
func (h *HelmAdapter) ReleaseStatus(ctx context.Context, release, namespace string) (ReleaseStatusResult, error) {
	result, err := proc.Run(ctx, h.runner,
		[]string{"helm", "status", release, "--namespace", namespace, "--output", "json"},
		"failed to fetch release status for "+release)
	if err != nil {
		var cmdErr *proc.CommandError
		if errors.As(err, &cmdErr) && notFoundIn(cmdErr) {
			return ReleaseStatusResult{Release: release, Namespace: namespace, Exists: false}, nil
		}
		return ReleaseStatusResult{}, err
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Stdout), &payload); err != nil {
		return ReleaseStatusResult{}, fmt.Errorf("invalid JSON from helm status for release %s: %w", release, err)
	}

	out := ReleaseStatusResult{Release: release, Namespace: namespace, Exists: true, Raw: payload}
	if info, ok := payload["info"].(map[string]any); ok {
		if status, ok := info["status"].(string); ok {
			out.Status = status
		}
	}
	if revision, ok := payload["version"].(float64); ok {
		out.Revision = int(revision)
	}
	return out, nil
}

// writeValuesFile serializes values to a temp file and returns its
// path with a cleanup func that always removes it.
func writeValuesFile(vals map[string]any) (string, func(), error) {
	if vals == nil {
		vals = map[string]any{}
	}
	payload, err := json.Marshal(vals)
	if err != nil {
		return "", nil, fmt.Errorf("encoding values: %w", err)
	}

	tmp, err := os.CreateTemp("", "launchpad-values-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("creating values file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing values file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing values file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}
