package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chalkan3/democtl/pkg/validate"
)

var (
	validateK8s     bool
	validateCompact bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a running deployment",
	Long: `Validate probes every exposed service of a running deployment and
checks the Prometheus metrics integration. Every check runs to
completion regardless of earlier failures; the exit code reflects the
final report.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateK8s, "k8s", false, "Validate the Kubernetes deployment instead of docker compose")
	validateCmd.Flags().BoolVar(&validateCompact, "compact", false, "Print a one-line summary instead of the full report")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	v := dockerValidator(cfg)
	if validateK8s {
		v = &validate.Validator{
			Deployment: "jenkins-k8s",
			Targets: []validate.HTTPTarget{
				{Name: "jenkins", URL: "http://" + cfg.IngressHost, OK: validate.JenkinsOK},
			},
		}
	}

	report := v.Run(ctx)
	if validateCompact {
		report.PrintCompact()
	} else {
		report.PrintReport()
	}

	if report.Failed() {
		return fmt.Errorf("%d of %d checks failed", report.Summary.Failed, report.Summary.Total)
	}
	return nil
}
