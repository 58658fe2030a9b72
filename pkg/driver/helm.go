package driver

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/chalkan3/democtl/pkg/runner"
)

// Helm drives the helm binary for one namespace.
type Helm struct {
	r         runner.Runner
	Namespace string
}

// NewHelm returns a Helm driver scoped to the namespace.
func NewHelm(r runner.Runner, namespace string) *Helm {
	return &Helm{r: r, Namespace: namespace}
}

// CheckPrereqs verifies the helm binary is installed.
func (h *Helm) CheckPrereqs(ctx context.Context) error {
	return h.r.Look("helm")
}

// UpgradeInstall converges a release: installs when absent, upgrades
// when present. The set values are applied in sorted key order so the
// generated command line is deterministic.
func (h *Helm) UpgradeInstall(ctx context.Context, w io.Writer, release, chart string, sets map[string]string, valueFiles ...string) error {
	args := []string{"upgrade", "--install", release, chart,
		"--namespace", h.Namespace, "--create-namespace", "--wait=false"}
	for _, f := range valueFiles {
		args = append(args, "-f", f)
	}
	keys := make([]string, 0, len(sets))
	for k := range sets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--set", fmt.Sprintf("%s=%s", k, sets[k]))
	}

	if w != nil {
		if err := h.r.RunStreaming(ctx, w, "helm", args...); err != nil {
			return &ConvergeError{Tool: "helm", Err: err}
		}
		return nil
	}
	out, err := h.r.Run(ctx, "helm", args...)
	if err != nil {
		return &ConvergeError{Tool: "helm", Output: out, Err: err}
	}
	return nil
}

// Uninstall removes a release, mapping already-absent to ErrNotFound.
func (h *Helm) Uninstall(ctx context.Context, release string) (string, error) {
	out, err := h.r.Run(ctx, "helm", "uninstall", release, "--namespace", h.Namespace)
	if err != nil {
		if outputSaysNotFound(out + err.Error()) {
			return out, fmt.Errorf("release %s: %w", release, ErrNotFound)
		}
		return out, err
	}
	return out, nil
}

// Status returns helm's own status output for a release.
func (h *Helm) Status(ctx context.Context, release string) (string, error) {
	return h.r.Run(ctx, "helm", "status", release, "--namespace", h.Namespace)
}

// ReleaseExists reports whether the release is installed.
func (h *Helm) ReleaseExists(ctx context.Context, release string) (bool, error) {
	out, err := h.r.Run(ctx, "helm", "status", release, "--namespace", h.Namespace)
	if err != nil {
		if outputSaysNotFound(out + err.Error()) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
