package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chalkan3/democtl/pkg/config"
	"github.com/chalkan3/democtl/pkg/driver"
	"github.com/chalkan3/democtl/pkg/jenkins"
	"github.com/chalkan3/democtl/pkg/materialize"
	"github.com/chalkan3/democtl/pkg/naming"
	"github.com/chalkan3/democtl/pkg/probe"
	"github.com/chalkan3/democtl/pkg/runner"
	"github.com/chalkan3/democtl/pkg/validate"
)

var (
	skipValidate   bool
	skipSeed       bool
	promptPassFlag bool
)

// Jenkins controller services in the compose file. Two controllers
// behind the load balancer make the stack highly available.
var jenkinsServices = []string{"jenkins-1", "jenkins-2"}

// Monitoring services attached to the Jenkins network by the generated
// overlay.
var monitoringServices = []string{"prometheus", "grafana"}

const diagnosticTailLines = 50

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the HA Jenkins demo stack",
	Long: `Deploy converges the demo stack to its desired state, waits for
every service to become ready, seeds a sample pipeline job and runs
the post-deploy validation checks. Re-running deploy against a live
stack is safe: the underlying tools converge instead of failing.`,
}

var deployDockerCmd = &cobra.Command{
	Use:   "docker",
	Short: "Deploy with docker compose",
	Long: `Deploy the Jenkins stack and its monitoring stack with docker
compose. The monitoring services join the Jenkins network through a
generated compose overlay, and Prometheus scrapes the controllers via
a generated scrape config. Both generated files live in a run-scoped
directory and are removed when the run ends.`,
	RunE: runDeployDocker,
}

var deployK8sCmd = &cobra.Command{
	Use:     "k8s",
	Aliases: []string{"kubernetes"},
	Short:   "Deploy to a Kubernetes cluster with Helm",
	Long: `Deploy the Jenkins chart with helm upgrade --install, wait for the
controller pods to become ready and reach Jenkins through its ingress
host for seeding and validation.`,
	RunE: runDeployK8s,
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.AddCommand(deployDockerCmd)
	deployCmd.AddCommand(deployK8sCmd)

	deployCmd.PersistentFlags().BoolVar(&skipValidate, "skip-validate", false, "Skip the post-deploy validation checks")
	deployCmd.PersistentFlags().BoolVar(&skipSeed, "skip-seed", false, "Skip seeding the sample pipeline job")
	deployCmd.PersistentFlags().BoolVar(&promptPassFlag, "prompt-password", false, "Prompt for the Jenkins admin password instead of reading configuration")
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so an
// interrupted deploy still runs its deferred cleanup.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func deployConfig() (*config.Config, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	if promptPassFlag {
		pass, err := promptPassword("Jenkins admin password")
		if err != nil {
			return nil, err
		}
		if pass == "" {
			return nil, fmt.Errorf("empty password")
		}
		cfg.AdminPassword = pass
	}
	return cfg, nil
}

// streamTo returns the writer converge output goes to, nil unless
// --verbose (captured output still surfaces in errors).
func streamTo() io.Writer {
	if verbose {
		return os.Stdout
	}
	return nil
}

func runDeployDocker(cmd *cobra.Command, args []string) error {
	cfg, err := deployConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	printHeader("Deploying HA Jenkins demo (docker compose)")
	printInfo(fmt.Sprintf("Run ID: %s  Project: %s", cfg.RunID, cfg.Project))

	r := &runner.ExecRunner{}
	stack := driver.NewCompose(r, cfg.Project, cfg.ComposeFile)
	if err := stack.CheckPrereqs(ctx); err != nil {
		printError(err.Error())
		return err
	}

	// Scrape config and overlay are derived from the same naming rules
	// compose applies, so Prometheus finds the controllers on the
	// network compose actually created.
	networkName := naming.ComposeNetworkName(cfg.Project, cfg.NetworkLabel)
	targets := make([]string, 0, len(jenkinsServices))
	for _, svc := range jenkinsServices {
		targets = append(targets, fmt.Sprintf("%s:%d", svc, config.DefaultJenkinsPort))
	}

	artifacts, cleanup, err := materialize.Write(materialize.Inputs{
		RunID:              cfg.RunID,
		Dir:                cfg.ArtifactDir,
		NetworkName:        networkName,
		JenkinsTargets:     targets,
		ScrapeJob:          "jenkins",
		MonitoringServices: monitoringServices,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	printInfo("Starting Jenkins stack...")
	if err := stack.Up(ctx, streamTo()); err != nil {
		return reportConvergeError(err)
	}

	// The monitoring stack runs in the same project but brings its own
	// files: its overlay marks the Jenkins network external so compose
	// attaches to it instead of recreating it. The scrape config path is
	// handed over via the environment the compose file mounts from.
	monRunner := &runner.ExecRunner{Env: []string{"DEMO_SCRAPE_CONFIG=" + artifacts.ScrapeConfig}}
	monitoring := driver.NewCompose(monRunner, cfg.Project, cfg.MonitoringFile, artifacts.Overlay)

	printInfo("Starting monitoring stack...")
	if err := monitoring.Up(ctx, streamTo()); err != nil {
		return reportConvergeError(err)
	}

	prober := probe.New(cfg.ProbeAttempts, cfg.ProbeInterval)
	prober.ShowSpinner = !verbose

	endpoints := make([]probe.Endpoint, 0, len(jenkinsServices)+3)
	for _, svc := range jenkinsServices {
		endpoints = append(endpoints, probe.Endpoint{
			Name:     svc,
			Check:    stack.ReadyCheck(svc),
			Diagnose: stack.DiagnoseFunc(svc, diagnosticTailLines),
		})
	}
	endpoints = append(endpoints,
		probe.Endpoint{
			Name:     "jenkins (load balancer)",
			Check:    probe.HTTPCheck(nil, cfg.JenkinsURL(), validate.JenkinsOK),
			Diagnose: stack.DiagnoseFunc("haproxy", diagnosticTailLines),
		},
		probe.Endpoint{
			Name:     "prometheus",
			Check:    probe.HTTPCheck(nil, cfg.PrometheusURL()+"/-/ready", nil),
			Diagnose: monitoring.DiagnoseFunc("prometheus", diagnosticTailLines),
		},
		probe.Endpoint{
			Name:     "grafana",
			Check:    probe.HTTPCheck(nil, cfg.GrafanaURL()+"/api/health", validate.GrafanaOK),
			Diagnose: monitoring.DiagnoseFunc("grafana", diagnosticTailLines),
		},
	)

	if err := prober.WaitAll(ctx, endpoints); err != nil {
		printError(err.Error())
		return err
	}
	printSuccess("All services ready")

	seedSampleJob(ctx, cfg, cfg.JenkinsURL())

	if !skipValidate {
		report := dockerValidator(cfg).Run(ctx)
		report.PrintReport()
		if report.Failed() {
			return fmt.Errorf("validation reported %d failed check(s)", report.Summary.Failed)
		}
	}

	printDeploySummary(cfg, cfg.JenkinsURL(), true)
	return nil
}

func runDeployK8s(cmd *cobra.Command, args []string) error {
	cfg, err := deployConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	printHeader("Deploying HA Jenkins demo (kubernetes)")
	printInfo(fmt.Sprintf("Run ID: %s  Release: %s  Namespace: %s", cfg.RunID, cfg.Release, cfg.Namespace))

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

	sets := map[string]string{
		"controller.admin.username":   cfg.AdminUser,
		"controller.admin.password":   cfg.AdminPassword,
		"controller.ingress.hostname": cfg.IngressHost,
	}

	printInfo(fmt.Sprintf("Converging release %s (chart %s)...", cfg.Release, cfg.HelmChart))
	if err := helm.UpgradeInstall(ctx, streamTo(), cfg.Release, cfg.HelmChart, sets, cfg.HelmValues); err != nil {
		return reportConvergeError(err)
	}

	selector := naming.InstanceSelector(cfg.Release)
	prober := probe.New(cfg.K8sProbeAttempts, cfg.ProbeInterval)
	prober.ShowSpinner = !verbose

	jenkinsURL := "http://" + cfg.IngressHost
	endpoints := []probe.Endpoint{
		{
			Name:     "jenkins pods",
			Check:    kubectl.PodsReadyCheck(selector),
			Diagnose: kubectl.DiagnoseFunc(selector, diagnosticTailLines),
		},
		{
			Name:     "jenkins (ingress)",
			Check:    probe.HTTPCheck(nil, jenkinsURL, validate.JenkinsOK),
			Diagnose: kubectl.DiagnoseFunc(selector, diagnosticTailLines),
		},
	}
	if err := prober.WaitAll(ctx, endpoints); err != nil {
		printError(err.Error())
		return err
	}
	printSuccess("All pods ready")

	// The object names are guessed from the chart's fullname convention.
	// Resolve the guess against the cluster before reporting it.
	names := naming.HelmObjectNames(cfg.Release)
	service := names.Service
	if ok, err := kubectl.ServiceExists(ctx, service); err == nil && !ok {
		if ok, err := kubectl.ServiceExists(ctx, names.AltService); err == nil && ok {
			service = names.AltService
		} else {
			printWarning(fmt.Sprintf("service %s not found (nor %s); the chart may have renamed its objects", names.Service, names.AltService))
		}
	}
	if verbose {
		printInfo("Jenkins service: " + service)
	}

	seedSampleJob(ctx, cfg, jenkinsURL)

	if !skipValidate {
		v := &validate.Validator{
			Deployment: "jenkins-k8s",
			Targets: []validate.HTTPTarget{
				{Name: "jenkins", URL: jenkinsURL, OK: validate.JenkinsOK},
			},
		}
		report := v.Run(ctx)
		report.PrintReport()
		if report.Failed() {
			return fmt.Errorf("validation reported %d failed check(s)", report.Summary.Failed)
		}
	}

	printDeploySummary(cfg, jenkinsURL, false)
	return nil
}

// seedSampleJob pushes the sample pipeline job and queues one build. A
// failed seed degrades the run instead of aborting it: the stack is up,
// only the sample workload is missing.
func seedSampleJob(ctx context.Context, cfg *config.Config, baseURL string) {
	if skipSeed {
		return
	}

	client, err := jenkins.New(baseURL, cfg.AdminUser, cfg.AdminPassword)
	if err != nil {
		printWarning(fmt.Sprintf("skipping job seed: %v", err))
		return
	}
	if err := client.Ping(ctx); err != nil {
		printWarning(fmt.Sprintf("skipping job seed: %v", err))
		return
	}

	configXML, err := jenkins.PipelineJobXML("Sample pipeline for the HA demo", jenkins.DefaultPipelineScript)
	if err != nil {
		printWarning(fmt.Sprintf("skipping job seed: %v", err))
		return
	}

	created, err := client.CreateOrUpdateJob(ctx, cfg.SampleJob, configXML)
	if err != nil {
		if errors.Is(err, jenkins.ErrCrumb) {
			printWarning(fmt.Sprintf("could not obtain a CSRF crumb, skipping job seed: %v", err))
		} else {
			printWarning(fmt.Sprintf("failed to seed job %s: %v", cfg.SampleJob, err))
		}
		return
	}
	if created {
		printSuccess(fmt.Sprintf("Created sample job %s", cfg.SampleJob))
	} else {
		printSuccess(fmt.Sprintf("Updated sample job %s", cfg.SampleJob))
	}

	if err := client.TriggerBuild(ctx, cfg.SampleJob); err != nil {
		printWarning(fmt.Sprintf("failed to trigger a build of %s: %v", cfg.SampleJob, err))
		return
	}
	printSuccess(fmt.Sprintf("Queued a build of %s", cfg.SampleJob))
}

func dockerValidator(cfg *config.Config) *validate.Validator {
	return &validate.Validator{
		Deployment: "jenkins-docker",
		Targets: []validate.HTTPTarget{
			{Name: "jenkins", URL: cfg.JenkinsURL(), OK: validate.JenkinsOK},
			{Name: "grafana", URL: cfg.GrafanaURL(), OK: validate.GrafanaOK},
		},
		PrometheusURL: cfg.PrometheusURL(),
		ScrapeJob:     "jenkins",
	}
}

// reportConvergeError surfaces the orchestrator's own output before
// returning, so the operator sees what the tool complained about even
// without --verbose.
func reportConvergeError(err error) error {
	var ce *driver.ConvergeError
	if errors.As(err, &ce) && ce.Output != "" {
		fmt.Fprintln(os.Stderr, ce.Output)
	}
	printError(err.Error())
	return err
}

func printDeploySummary(cfg *config.Config, jenkinsURL string, docker bool) {
	fmt.Println()
	printSuccess("Deployment complete")
	printInfo("  Jenkins:    " + jenkinsURL)
	if docker {
		printInfo("  Grafana:    " + cfg.GrafanaURL())
		printInfo("  Prometheus: " + cfg.PrometheusURL())
	}
	printInfo("  Login:      " + cfg.AdminUser + " (password from configuration, never printed)")
}
