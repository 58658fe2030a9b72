// Package materialize generates the ephemeral configuration artifacts
// the external tools consume: a Prometheus scrape config listing the
// derived Jenkins targets and a compose overlay joining the
// externally-owned Jenkins network. Artifacts are typed structs
// serialized with yaml.v3, so regenerating with the same inputs yields
// byte-identical output.
package materialize

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Inputs are the resolved values templated into the artifacts.
type Inputs struct {
	// RunID scopes the artifact directory so concurrent runs of
	// different deployments cannot clobber each other's files.
	RunID string

	// Dir is the base artifact directory (a known relative path).
	Dir string

	// NetworkName is the derived docker network name the monitoring
	// services join. It must match what compose itself generated.
	NetworkName string

	// JenkinsTargets are host:port scrape addresses for the Jenkins
	// controllers.
	JenkinsTargets []string

	// ScrapeJob is the Prometheus job name for the Jenkins targets.
	ScrapeJob string

	// MonitoringServices are the overlay services attached to the
	// Jenkins network (prometheus, grafana).
	MonitoringServices []string
}

// Artifacts are the generated file paths.
type Artifacts struct {
	Dir          string
	ScrapeConfig string
	Overlay      string
}

// ScrapeConfig is one Prometheus scrape job.
type ScrapeConfig struct {
	JobName       string         `yaml:"job_name"`
	MetricsPath   string         `yaml:"metrics_path,omitempty"`
	StaticConfigs []StaticConfig `yaml:"static_configs"`
}

// StaticConfig is a static target group.
type StaticConfig struct {
	Targets []string          `yaml:"targets"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

type scrapeFile struct {
	ScrapeConfigs []ScrapeConfig `yaml:"scrape_configs"`
}

type overlayFile struct {
	Services map[string]overlayService `yaml:"services"`
	Networks map[string]overlayNetwork `yaml:"networks"`
}

type overlayService struct {
	Networks []string `yaml:"networks"`
}

type overlayNetwork struct {
	External bool   `yaml:"external"`
	Name     string `yaml:"name"`
}

// overlayNetworkKey is the network key monitoring services reference
// inside the overlay file.
const overlayNetworkKey = "jenkins"

// Write renders both artifacts under a run-scoped subdirectory and
// returns their paths plus a cleanup function removing everything it
// created. Callers defer cleanup on every path, success and failure
// alike, so no generated file outlives the run.
func Write(in Inputs) (*Artifacts, func(), error) {
	dir := filepath.Join(in.Dir, in.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create artifact dir %s: %w", dir, err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	scrape, err := renderScrapeConfig(in)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	overlay, err := renderOverlay(in)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	a := &Artifacts{
		Dir:          dir,
		ScrapeConfig: filepath.Join(dir, "prometheus-jenkins.yml"),
		Overlay:      filepath.Join(dir, "compose.monitoring-overlay.yml"),
	}
	if err := os.WriteFile(a.ScrapeConfig, scrape, 0o644); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to write scrape config: %w", err)
	}
	if err := os.WriteFile(a.Overlay, overlay, 0o644); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to write compose overlay: %w", err)
	}
	return a, cleanup, nil
}

// RenderScrapeConfig produces the scrape-config document for the
// derived Jenkins targets.
func renderScrapeConfig(in Inputs) ([]byte, error) {
	doc := scrapeFile{
		ScrapeConfigs: []ScrapeConfig{{
			JobName:     in.ScrapeJob,
			MetricsPath: "/prometheus",
			StaticConfigs: []StaticConfig{{
				Targets: in.JenkinsTargets,
				Labels:  map[string]string{"stack": "jenkins-ha"},
			}},
		}},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render scrape config: %w", err)
	}
	return out, nil
}

// renderOverlay produces the compose overlay declaring the Jenkins
// network as external and attaching the monitoring services to it.
func renderOverlay(in Inputs) ([]byte, error) {
	doc := overlayFile{
		Services: map[string]overlayService{},
		Networks: map[string]overlayNetwork{
			overlayNetworkKey: {External: true, Name: in.NetworkName},
		},
	}
	for _, svc := range in.MonitoringServices {
		doc.Services[svc] = overlayService{Networks: []string{overlayNetworkKey}}
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render compose overlay: %w", err)
	}
	return out, nil
}
