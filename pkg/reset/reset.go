// Package reset tears down a deployment in reverse dependency order:
// compute first, then persistent storage, then the network or
// namespace. Destructive steps sit behind an injected confirmation so
// the sequencing is testable without a tty.
package reset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/chalkan3/democtl/pkg/driver"
	"github.com/chalkan3/democtl/pkg/naming"
)

// Confirmer gates destructive operations.
type Confirmer interface {
	// Confirm returns true when the operator approves the step.
	Confirm(prompt string) bool
}

// AutoApprove approves every step (the --yes flag).
type AutoApprove struct{}

func (AutoApprove) Confirm(string) bool { return true }

// Outcome records what happened to one teardown step.
type Outcome struct {
	Step string

	// Done means the resource was removed this run.
	Done bool

	// NothingToDo means the resource was already absent; this is
	// success, not failure.
	NothingToDo bool

	// Skipped means the operator declined the confirmation.
	Skipped bool

	// Err is non-nil when the step failed. Teardown continues with the
	// remaining steps regardless.
	Err error
}

// Controller runs teardown sequences.
type Controller struct {
	Confirm Confirmer
	Out     io.Writer
}

func (c *Controller) out() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}

// runStep executes one teardown step, translating already-absent into
// NothingToDo and recording (not raising) errors.
func (c *Controller) runStep(name string, destructive bool, prompt string, fn func() error) Outcome {
	o := Outcome{Step: name}

	if destructive && !c.Confirm.Confirm(prompt) {
		o.Skipped = true
		color.New(color.FgYellow).Fprintf(c.out(), "[SKIP] %s (not confirmed)\n", name)
		return o
	}

	err := fn()
	switch {
	case err == nil:
		o.Done = true
		color.New(color.FgGreen).Fprintf(c.out(), "[OK]   %s\n", name)
	case errors.Is(err, driver.ErrNotFound):
		o.NothingToDo = true
		fmt.Fprintf(c.out(), "[OK]   %s: nothing to do\n", name)
	default:
		o.Err = err
		color.New(color.FgYellow).Fprintf(c.out(), "[WARN] %s failed: %v (continuing)\n", name, err)
	}
	return o
}

// DockerInputs identify the compose deployment to tear down.
type DockerInputs struct {
	Project      string
	NetworkLabel string
}

// ResetDocker removes the compose deployment: containers, then (each
// behind its own confirmation) volumes and the derived network.
// Already-absent resources report success.
func (c *Controller) ResetDocker(ctx context.Context, compose *driver.Compose, in DockerInputs) []Outcome {
	var outcomes []Outcome

	outcomes = append(outcomes, c.runStep("remove containers", false, "", func() error {
		states, err := compose.Ps(ctx)
		if err != nil {
			return err
		}
		if len(states) == 0 {
			return fmt.Errorf("project containers: %w", driver.ErrNotFound)
		}
		_, err = compose.Down(ctx, false)
		return err
	}))

	outcomes = append(outcomes, c.runStep("remove volumes", true,
		"Delete persistent volumes? This destroys all Jenkins data", func() error {
			vols, err := compose.ProjectVolumes(ctx)
			if err != nil {
				return err
			}
			if len(vols) == 0 {
				return fmt.Errorf("project volumes: %w", driver.ErrNotFound)
			}
			var firstErr error
			for _, v := range vols {
				if err := compose.RemoveVolume(ctx, v); err != nil && !errors.Is(err, driver.ErrNotFound) && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		}))

	networkName := naming.ComposeNetworkName(in.Project, in.NetworkLabel)
	outcomes = append(outcomes, c.runStep("remove network "+networkName, true,
		fmt.Sprintf("Delete network %s? Other stacks may still be attached", networkName), func() error {
			return compose.RemoveNetwork(ctx, networkName)
		}))

	return outcomes
}

// K8sInputs identify the helm deployment to tear down.
type K8sInputs struct {
	Release   string
	Namespace string
}

// ResetK8s removes the helm deployment: the release, then (each behind
// its own confirmation) the PVCs and finally the namespace.
func (c *Controller) ResetK8s(ctx context.Context, helm *driver.Helm, kubectl *driver.Kubectl, in K8sInputs) []Outcome {
	var outcomes []Outcome

	outcomes = append(outcomes, c.runStep("uninstall release "+in.Release, false, "", func() error {
		_, err := helm.Uninstall(ctx, in.Release)
		return err
	}))

	selector := naming.InstanceSelector(in.Release)
	outcomes = append(outcomes, c.runStep("delete persistent volume claims", true,
		"Delete persistent volume claims? This destroys all Jenkins data", func() error {
			_, err := kubectl.DeletePVCs(ctx, selector)
			return err
		}))

	outcomes = append(outcomes, c.runStep("delete namespace "+in.Namespace, true,
		fmt.Sprintf("Delete namespace %s? Everything inside it will be removed", in.Namespace), func() error {
			return kubectl.DeleteNamespace(ctx)
		}))

	return outcomes
}

// Summarize prints the final teardown summary and reports whether any
// step actually failed (skips and nothing-to-do are not failures).
func (c *Controller) Summarize(outcomes []Outcome) bool {
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	fmt.Fprintln(c.out())
	if failed > 0 {
		color.New(color.FgYellow).Fprintf(c.out(), "Teardown finished with %d warning(s)\n", failed)
	} else {
		color.New(color.FgGreen).Fprintln(c.out(), "Teardown complete")
	}
	return failed == 0
}
