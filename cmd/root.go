package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	verbose     bool
	autoApprove bool

	// Version information - set by main.go
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)

// SetVersionInfo sets the version information from main.go
func SetVersionInfo(version, commit, date, builtBy string) {
	Version = version
	Commit = commit
	Date = date
	BuiltBy = builtBy
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "democtl",
	Short: "Demo orchestration for the HA Jenkins stack",
	Long: `democtl deploys, probes, seeds and tears down the highly-available
Jenkins demo stack (Jenkins behind a load balancer plus
Prometheus/Grafana monitoring) on either docker compose or a
Kubernetes cluster via Helm.

Configuration is file- and environment-driven: democtl reads demo.env
(key=value lines) and lets process environment variables override it.
Every run is idempotent - deploy converges, reset tolerates
already-clean environments.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "demo.env", "Config file (key=value lines)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&autoApprove, "yes", "y", false, "Auto-approve without prompting")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(`democtl %s
  Commit:    %s
  Built:     %s
  Built by:  %s
`, Version, Commit, Date, BuiltBy))
	rootCmd.Version = Version
}
