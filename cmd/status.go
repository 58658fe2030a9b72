package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chalkan3/democtl/pkg/config"
	"github.com/chalkan3/democtl/pkg/driver"
	"github.com/chalkan3/democtl/pkg/naming"
	"github.com/chalkan3/democtl/pkg/runner"
)

var (
	statusK8s    bool
	outputFormat string
)

// StackStatus is the deployment status for JSON/YAML output.
type StackStatus struct {
	Deployment string          `json:"deployment" yaml:"deployment"`
	Project    string          `json:"project,omitempty" yaml:"project,omitempty"`
	Release    string          `json:"release,omitempty" yaml:"release,omitempty"`
	Namespace  string          `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Network    string          `json:"network,omitempty" yaml:"network,omitempty"`
	Services   []ServiceStatus `json:"services" yaml:"services"`
}

// ServiceStatus is the status of a single service or pod.
type ServiceStatus struct {
	Name     string `json:"name" yaml:"name"`
	State    string `json:"state" yaml:"state"`
	Health   string `json:"health,omitempty" yaml:"health,omitempty"`
	Restarts int    `json:"restarts,omitempty" yaml:"restarts,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of the demo deployment",
	Long: `Display the current state of the deployed stack: container or pod
states, health and the shared network.`,
	Example: `  # Show the docker compose deployment
  democtl status

  # Show the Kubernetes deployment as JSON
  democtl status --k8s --format json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusK8s, "k8s", false, "Show the Kubernetes deployment instead of docker compose")
	statusCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table|json|yaml")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if outputFormat != "table" && outputFormat != "json" && outputFormat != "yaml" {
		return fmt.Errorf("invalid output format: %s (must be table, json, or yaml)", outputFormat)
	}

	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Fetching deployment status..."
	// Structured output must stay machine-readable.
	if outputFormat == "table" {
		s.Start()
	}

	var status StackStatus
	if statusK8s {
		status, err = k8sStatus(ctx, cfg)
	} else {
		status, err = dockerStatus(ctx, cfg)
	}
	s.Stop()
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(status)
	default:
		printStatusTable(status)
		return nil
	}
}

func dockerStatus(ctx context.Context, cfg *config.Config) (StackStatus, error) {
	compose := driver.NewCompose(&runner.ExecRunner{}, cfg.Project)
	if err := compose.CheckPrereqs(ctx); err != nil {
		return StackStatus{}, err
	}

	status := StackStatus{
		Deployment: "docker",
		Project:    cfg.Project,
	}

	states, err := compose.Ps(ctx)
	if err != nil {
		return StackStatus{}, err
	}
	for _, st := range states {
		status.Services = append(status.Services, ServiceStatus{
			Name:   st.Service,
			State:  st.State,
			Health: st.Health,
		})
	}

	networkName := naming.ComposeNetworkName(cfg.Project, cfg.NetworkLabel)
	if exists, err := compose.NetworkExists(ctx, networkName); err == nil && exists {
		status.Network = networkName
	}
	return status, nil
}

func k8sStatus(ctx context.Context, cfg *config.Config) (StackStatus, error) {
	r := &runner.ExecRunner{}
	helm := driver.NewHelm(r, cfg.Namespace)
	kubectl := driver.NewKubectl(r, cfg.Namespace)
	if err := kubectl.CheckPrereqs(ctx); err != nil {
		return StackStatus{}, err
	}

	status := StackStatus{
		Deployment: "k8s",
		Release:    cfg.Release,
		Namespace:  cfg.Namespace,
	}

	exists, err := helm.ReleaseExists(ctx, cfg.Release)
	if err != nil {
		return StackStatus{}, err
	}
	if !exists {
		return status, nil
	}

	pods, err := kubectl.Pods(ctx, naming.InstanceSelector(cfg.Release))
	if err != nil {
		return StackStatus{}, err
	}
	for _, p := range pods {
		health := "not ready"
		if p.Ready {
			health = "ready"
		}
		status.Services = append(status.Services, ServiceStatus{
			Name:     p.Name,
			State:    p.Phase,
			Health:   health,
			Restarts: p.Restarts,
		})
	}
	return status, nil
}

func printStatusTable(status StackStatus) {
	switch status.Deployment {
	case "k8s":
		printHeader(fmt.Sprintf("Deployment Status: release %s (namespace %s)", status.Release, status.Namespace))
	default:
		printHeader(fmt.Sprintf("Deployment Status: project %s", status.Project))
	}

	if len(status.Services) == 0 {
		color.Yellow("Nothing deployed. Start with: democtl deploy docker")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tHEALTH\tRESTARTS")
	fmt.Fprintln(w, "----\t-----\t------\t--------")
	for _, svc := range status.Services {
		health := svc.Health
		if health == "" {
			health = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", svc.Name, svc.State, health, svc.Restarts)
	}
	w.Flush()

	if status.Network != "" {
		fmt.Println()
		color.Green("Network %s is up", status.Network)
	}
}
