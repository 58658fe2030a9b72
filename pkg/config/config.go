// Package config resolves the demo deployment configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/chalkan3/democtl/pkg/naming"
)

// Default values applied when neither the process environment nor the
// config file provide a key
const (
	DefaultAdminUser     = "admin"
	DefaultAdminPassword = "admin123"
	DefaultNetworkLabel  = "jenkins-net"
	DefaultRelease       = "jenkins-ha"
	DefaultNamespace     = "jenkins"
	DefaultIngressHost   = "jenkins.local"
	DefaultSampleJob     = "demo-pipeline"
	DefaultArtifactDir   = ".demo"

	DefaultComposeFile    = "docker/docker-compose.yml"
	DefaultMonitoringFile = "docker/docker-compose.monitoring.yml"
	DefaultHelmChart      = "jenkins/jenkins"
	DefaultHelmValues     = "helm/values-ha.yaml"

	DefaultJenkinsPort    = 8080
	DefaultGrafanaPort    = 3000
	DefaultPrometheusPort = 9090

	DefaultProbeInterval    = 10 * time.Second
	DefaultProbeAttempts    = 30
	DefaultK8sProbeAttempts = 60
)

// Config holds all resolved deployment options. It is immutable once
// resolved: every stage receives it by reference instead of reading
// the process environment.
type Config struct {
	// Jenkins admin credentials used for the post-deploy API calls
	AdminUser     string `validate:"required"`
	AdminPassword string `validate:"required,min=4"`

	// Project is the compose project name scoping all docker resources
	Project string `validate:"required"`

	// NetworkLabel is the network key in the compose file; the real
	// docker network name is derived from Project and NetworkLabel
	NetworkLabel string `validate:"required"`

	// Helm release and namespace for the kubernetes path
	Release   string `validate:"required"`
	Namespace string `validate:"required"`

	IngressHost string `validate:"required,hostname_rfc1123"`

	JenkinsPort    int `validate:"gt=0,lte=65535"`
	GrafanaPort    int `validate:"gt=0,lte=65535"`
	PrometheusPort int `validate:"gt=0,lte=65535"`

	// Readiness probe budget: Attempts polls at Interval
	ProbeInterval    time.Duration `validate:"gt=0"`
	ProbeAttempts    int           `validate:"gt=0"`
	K8sProbeAttempts int           `validate:"gt=0"`

	SampleJob   string `validate:"required"`
	ArtifactDir string `validate:"required"`

	// Compose file for the Jenkins stack and the monitoring stack
	// joining its network via the generated overlay
	ComposeFile    string `validate:"required"`
	MonitoringFile string `validate:"required"`

	// Helm chart reference and values file for the kubernetes path
	HelmChart  string `validate:"required"`
	HelmValues string `validate:"required"`

	// RunID tags ephemeral artifacts and log lines for this run
	RunID string

	// LoadedFrom is the config file actually read, empty when the
	// file was absent and defaults were used
	LoadedFrom string

	// Warnings collected during resolution (missing file, default
	// password in use). Never contains secret values.
	Warnings []string
}

// JenkinsURL returns the local Jenkins endpoint for the docker path.
func (c *Config) JenkinsURL() string {
	return fmt.Sprintf("http://localhost:%d", c.JenkinsPort)
}

// GrafanaURL returns the local Grafana endpoint for the docker path.
func (c *Config) GrafanaURL() string {
	return fmt.Sprintf("http://localhost:%d", c.GrafanaPort)
}

// PrometheusURL returns the local Prometheus endpoint for the docker path.
func (c *Config) PrometheusURL() string {
	return fmt.Sprintf("http://localhost:%d", c.PrometheusPort)
}

// ProbeBudget returns the wall-clock ceiling for a full probe cycle.
func (c *Config) ProbeBudget() time.Duration {
	return time.Duration(c.ProbeAttempts) * c.ProbeInterval
}

// Resolve loads the configuration file at path (key=value lines) and
// resolves every recognized key with precedence:
//
//	process environment > config file > built-in default
//
// A missing config file is not an error: a warning is recorded and
// resolution proceeds entirely on environment and defaults. The file is
// read without mutating the process environment.
func Resolve(path string) (*Config, error) {
	fileVals := map[string]string{}
	loadedFrom := ""
	var warnings []string

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			vals, err := godotenv.Read(path)
			if err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			fileVals = vals
			loadedFrom = path
		} else {
			warnings = append(warnings, fmt.Sprintf("config file %s not found, using defaults", path))
		}
	}

	r := resolver{file: fileVals}

	// The project name is normalized here, once: the -p flag, the
	// compose label filter and every derived network/volume name must
	// all use the same spelling or teardown misses resources compose
	// actually created.
	rawProject := r.str("COMPOSE_PROJECT_NAME", defaultProject())
	project := naming.NormalizeProject(rawProject)
	if project != rawProject {
		warnings = append(warnings, fmt.Sprintf("project name %q normalized to %q", rawProject, project))
	}

	cfg := &Config{
		AdminUser:     r.str("JENKINS_ADMIN_USER", DefaultAdminUser),
		AdminPassword: r.str("JENKINS_ADMIN_PASSWORD", DefaultAdminPassword),
		Project:       project,
		NetworkLabel:  r.str("JENKINS_NETWORK", DefaultNetworkLabel),
		Release:       r.str("HELM_RELEASE", DefaultRelease),
		Namespace:     r.str("K8S_NAMESPACE", DefaultNamespace),
		IngressHost:   r.str("INGRESS_HOST", DefaultIngressHost),

		JenkinsPort:    r.num("JENKINS_PORT", DefaultJenkinsPort),
		GrafanaPort:    r.num("GRAFANA_PORT", DefaultGrafanaPort),
		PrometheusPort: r.num("PROMETHEUS_PORT", DefaultPrometheusPort),

		ProbeInterval:    r.dur("PROBE_INTERVAL", DefaultProbeInterval),
		ProbeAttempts:    r.num("PROBE_ATTEMPTS", DefaultProbeAttempts),
		K8sProbeAttempts: r.num("K8S_PROBE_ATTEMPTS", DefaultK8sProbeAttempts),

		SampleJob:   r.str("SAMPLE_JOB_NAME", DefaultSampleJob),
		ArtifactDir: r.str("DEMO_ARTIFACT_DIR", DefaultArtifactDir),

		ComposeFile:    r.str("DEMO_COMPOSE_FILE", DefaultComposeFile),
		MonitoringFile: r.str("DEMO_MONITORING_FILE", DefaultMonitoringFile),
		HelmChart:      r.str("HELM_CHART", DefaultHelmChart),
		HelmValues:     r.str("HELM_VALUES_FILE", DefaultHelmValues),

		RunID:      uuid.New().String()[:8],
		LoadedFrom: loadedFrom,
	}

	if cfg.AdminPassword == DefaultAdminPassword {
		warnings = append(warnings, "using the built-in default admin password; set JENKINS_ADMIN_PASSWORD for anything beyond a local demo")
	}
	cfg.Warnings = append(warnings, r.warnings...)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

var validate = validator.New()

// resolver applies the env > file > default precedence for one key
type resolver struct {
	file     map[string]string
	warnings []string
}

func (r *resolver) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	if v, ok := r.file[key]; ok && v != "" {
		return v
	}
	return def
}

func (r *resolver) num(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.warnings = append(r.warnings, fmt.Sprintf("ignoring %s=%q: not a number", key, raw))
		return def
	}
	return n
}

func (r *resolver) dur(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.warnings = append(r.warnings, fmt.Sprintf("ignoring %s=%q: not a duration", key, raw))
		return def
	}
	return d
}

// defaultProject mirrors compose's own fallback: the base name of the
// working directory when COMPOSE_PROJECT_NAME is unset.
func defaultProject() string {
	wd, err := os.Getwd()
	if err != nil {
		return "demo"
	}
	return filepath.Base(wd)
}
