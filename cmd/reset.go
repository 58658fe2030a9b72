package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chalkan3/democtl/pkg/driver"
	"github.com/chalkan3/democtl/pkg/reset"
	"github.com/chalkan3/democtl/pkg/runner"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Tear down a demo deployment",
	Long: `Reset removes a deployment in reverse dependency order: compute
first, then persistent storage, then the network or namespace.
Destructive steps (volumes, PVCs, the shared network, the namespace)
each ask for confirmation unless --yes is set. Running reset against
an already-clean environment succeeds and reports nothing to do.`,
}

var resetDockerCmd = &cobra.Command{
	Use:   "docker",
	Short: "Tear down the docker compose deployment",
	RunE:  runResetDocker,
}

var resetK8sCmd = &cobra.Command{
	Use:     "k8s",
	Aliases: []string{"kubernetes"},
	Short:   "Tear down the Kubernetes deployment",
	RunE:    runResetK8s,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.AddCommand(resetDockerCmd)
	resetCmd.AddCommand(resetK8sCmd)
}

func runResetDocker(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	printHeader("Resetting HA Jenkins demo (docker compose)")

	compose := driver.NewCompose(&runner.ExecRunner{}, cfg.Project)
	if err := compose.CheckPrereqs(ctx); err != nil {
		printError(err.Error())
		return err
	}

	ctrl := &reset.Controller{Confirm: newConfirmer(), Out: os.Stdout}
	outcomes := ctrl.ResetDocker(ctx, compose, reset.DockerInputs{
		Project:      cfg.Project,
		NetworkLabel: cfg.NetworkLabel,
	})
	if !ctrl.Summarize(outcomes) {
		return fmt.Errorf("teardown finished with warnings")
	}
	return nil
}

func runResetK8s(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	printHeader("Resetting HA Jenkins demo (kubernetes)")

	r := &runner.ExecRunner{}
	helm := driver.NewHelm(r, cfg.Namespace)
	kubectl := driver.NewKubectl(r, cfg.Namespace)
	if err := helm.CheckPrereqs(ctx); err != nil {
		printError(err.Error())
		return err
	}
	if err := kubectl.CheckPrereqs(ctx); err != nil {
		printError(err.Error())
		return err
	}

	ctrl := &reset.Controller{Confirm: newConfirmer(), Out: os.Stdout}
	outcomes := ctrl.ResetK8s(ctx, helm, kubectl, reset.K8sInputs{
		Release:   cfg.Release,
		Namespace: cfg.Namespace,
	})
	if !ctrl.Summarize(outcomes) {
		return fmt.Errorf("teardown finished with warnings")
	}
	return nil
}
