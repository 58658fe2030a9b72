package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chalkan3/democtl/pkg/probe"
	"github.com/chalkan3/democtl/pkg/runner"
)

// Kubectl drives the kubectl binary for one namespace. The control
// plane is a black box: we only consume its CLI, never client-go.
type Kubectl struct {
	r         runner.Runner
	Namespace string
}

// NewKubectl returns a Kubectl driver scoped to the namespace.
func NewKubectl(r runner.Runner, namespace string) *Kubectl {
	return &Kubectl{r: r, Namespace: namespace}
}

// CheckPrereqs verifies the kubectl binary is installed.
func (k *Kubectl) CheckPrereqs(ctx context.Context) error {
	return k.r.Look("kubectl")
}

// PodStatus is the subset of pod state the prober and status command need.
type PodStatus struct {
	Name     string
	Phase    string
	Ready    bool
	Restarts int
}

// podList mirrors the slice of `kubectl get pods -o json` we consume.
type podList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Status struct {
			Phase             string `json:"phase"`
			ContainerStatuses []struct {
				Ready        bool `json:"ready"`
				RestartCount int  `json:"restartCount"`
			} `json:"containerStatuses"`
		} `json:"status"`
	} `json:"items"`
}

// Pods lists pods matching the label selector.
func (k *Kubectl) Pods(ctx context.Context, selector string) ([]PodStatus, error) {
	out, err := k.r.Run(ctx, "kubectl", "get", "pods",
		"--namespace", k.Namespace, "-l", selector, "-o", "json")
	if err != nil {
		return nil, fmt.Errorf("kubectl get pods failed: %w", err)
	}

	var list podList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return nil, fmt.Errorf("failed to parse pod list: %w", err)
	}

	pods := make([]PodStatus, 0, len(list.Items))
	for _, item := range list.Items {
		p := PodStatus{Name: item.Metadata.Name, Phase: item.Status.Phase, Ready: len(item.Status.ContainerStatuses) > 0}
		for _, cs := range item.Status.ContainerStatuses {
			if !cs.Ready {
				p.Ready = false
			}
			p.Restarts += cs.RestartCount
		}
		pods = append(pods, p)
	}
	return pods, nil
}

// Logs returns the last tail lines of one pod's log.
func (k *Kubectl) Logs(ctx context.Context, pod string, tail int) (string, error) {
	return k.r.Run(ctx, "kubectl", "logs", pod,
		"--namespace", k.Namespace, "--tail", fmt.Sprint(tail))
}

// ServiceExists reports whether the named service exists. Used to
// resolve the helm object-name guess against reality before relying
// on it.
func (k *Kubectl) ServiceExists(ctx context.Context, name string) (bool, error) {
	out, err := k.r.Run(ctx, "kubectl", "get", "service", name, "--namespace", k.Namespace)
	if err != nil {
		if outputSaysNotFound(out + err.Error()) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NamespaceExists reports whether the namespace exists.
func (k *Kubectl) NamespaceExists(ctx context.Context) (bool, error) {
	out, err := k.r.Run(ctx, "kubectl", "get", "namespace", k.Namespace)
	if err != nil {
		if outputSaysNotFound(out + err.Error()) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeletePVCs removes the persistent volume claims matching the
// selector. ErrNotFound is returned when nothing matched, so teardown
// can report "nothing to do".
func (k *Kubectl) DeletePVCs(ctx context.Context, selector string) (string, error) {
	out, err := k.r.Run(ctx, "kubectl", "delete", "pvc",
		"--namespace", k.Namespace, "-l", selector, "--ignore-not-found")
	if err != nil {
		return out, err
	}
	if strings.TrimSpace(out) == "" || strings.Contains(out, "No resources found") {
		return out, fmt.Errorf("pvc selector %q: %w", selector, ErrNotFound)
	}
	return out, nil
}

// DeleteNamespace removes the namespace, mapping already-absent to
// ErrNotFound.
func (k *Kubectl) DeleteNamespace(ctx context.Context) error {
	exists, err := k.NamespaceExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("namespace %s: %w", k.Namespace, ErrNotFound)
	}
	out, err := k.r.Run(ctx, "kubectl", "delete", "namespace", k.Namespace)
	if err != nil {
		if outputSaysNotFound(out + err.Error()) {
			return fmt.Errorf("namespace %s: %w", k.Namespace, ErrNotFound)
		}
		return err
	}
	return nil
}

// PodsReadyCheck returns a probe check that is ready once at least one
// pod matches the selector and every matching pod is Running with all
// containers ready. A Failed pod is flagged as crashed.
func (k *Kubectl) PodsReadyCheck(selector string) probe.CheckFunc {
	return func(ctx context.Context) (probe.Status, error) {
		pods, err := k.Pods(ctx, selector)
		if err != nil {
			return probe.Status{}, err
		}
		if len(pods) == 0 {
			return probe.Status{Detail: "no pods scheduled yet"}, nil
		}

		for _, p := range pods {
			switch p.Phase {
			case "Failed":
				return probe.Status{Crashed: true, Detail: fmt.Sprintf("pod %s failed", p.Name)}, nil
			case "Running":
				if !p.Ready {
					return probe.Status{Detail: fmt.Sprintf("pod %s running, containers not ready (restarts: %d)", p.Name, p.Restarts)}, nil
				}
			default:
				return probe.Status{Detail: fmt.Sprintf("pod %s %s", p.Name, strings.ToLower(p.Phase))}, nil
			}
		}
		return probe.Status{Ready: true, Detail: fmt.Sprintf("%d pod(s) ready", len(pods))}, nil
	}
}

// DiagnoseFunc returns a probe diagnoser dumping logs for every pod
// matching the selector.
func (k *Kubectl) DiagnoseFunc(selector string, tail int) probe.DiagnoseFunc {
	return func(ctx context.Context) string {
		pods, err := k.Pods(ctx, selector)
		if err != nil {
			return fmt.Sprintf("failed to list pods for %q: %v", selector, err)
		}
		if len(pods) == 0 {
			return fmt.Sprintf("no pods match selector %q", selector)
		}
		var b strings.Builder
		for _, p := range pods {
			fmt.Fprintf(&b, "=== %s (%s) ===\n", p.Name, p.Phase)
			logs, err := k.Logs(ctx, p.Name, tail)
			if err != nil {
				fmt.Fprintf(&b, "failed to fetch logs: %v\n", err)
				continue
			}
			b.WriteString(logs)
			if !strings.HasSuffix(logs, "\n") {
				b.WriteString("\n")
			}
		}
		return b.String()
	}
}
