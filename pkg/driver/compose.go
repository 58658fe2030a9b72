package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chalkan3/democtl/pkg/naming"
	"github.com/chalkan3/democtl/pkg/probe"
	"github.com/chalkan3/democtl/pkg/runner"
)

// Compose drives docker compose for one project. All resources it
// creates are scoped by the project name, which is what makes
// selective teardown possible later.
type Compose struct {
	r       runner.Runner
	Project string
	Files   []string
}

// NewCompose returns a Compose driver for the given project and
// compose file list (applied in order, later files overlay earlier
// ones). The project name is normalized so the -p flag and the label
// filter match the names compose assigns.
func NewCompose(r runner.Runner, project string, files ...string) *Compose {
	return &Compose{r: r, Project: naming.NormalizeProject(project), Files: files}
}

// CheckPrereqs verifies the docker binary and the compose plugin are
// available. Failures here are fatal and never retried.
func (c *Compose) CheckPrereqs(ctx context.Context) error {
	if err := c.r.Look("docker"); err != nil {
		return err
	}
	if _, err := c.r.Run(ctx, "docker", "compose", "version"); err != nil {
		return &runner.PrereqError{Binary: "docker compose", Hint: "Compose v2 is required (the docker compose plugin, not docker-compose v1)"}
	}
	return nil
}

func (c *Compose) args(sub ...string) []string {
	args := []string{"compose", "-p", c.Project}
	for _, f := range c.Files {
		args = append(args, "-f", f)
	}
	return append(args, sub...)
}

// Up converges the project to the desired state: creates what is
// absent, updates what drifted, no-ops on what matches.
func (c *Compose) Up(ctx context.Context, w io.Writer) error {
	if w != nil {
		if err := c.r.RunStreaming(ctx, w, "docker", c.args("up", "-d")...); err != nil {
			return &ConvergeError{Tool: "docker compose", Err: err}
		}
		return nil
	}
	out, err := c.r.Run(ctx, "docker", c.args("up", "-d")...)
	if err != nil {
		return &ConvergeError{Tool: "docker compose", Output: out, Err: err}
	}
	return nil
}

// Down removes the project's containers (and volumes when asked).
// Running it against an already-clean project succeeds.
func (c *Compose) Down(ctx context.Context, removeVolumes bool) (string, error) {
	sub := []string{"down", "--remove-orphans"}
	if removeVolumes {
		sub = append(sub, "-v")
	}
	return c.r.Run(ctx, "docker", c.args(sub...)...)
}

// ContainerState is one service's container as reported by compose ps.
type ContainerState struct {
	Name     string `json:"Name"`
	Service  string `json:"Service"`
	State    string `json:"State"`
	Health   string `json:"Health"`
	ExitCode int    `json:"ExitCode"`
}

// Ps lists the project's containers. Compose v2 emits one JSON object
// per line; some point releases emit a single array, so both shapes
// are accepted.
func (c *Compose) Ps(ctx context.Context) ([]ContainerState, error) {
	out, err := c.r.Run(ctx, "docker", c.args("ps", "-a", "--format", "json")...)
	if err != nil {
		return nil, fmt.Errorf("compose ps failed: %w", err)
	}

	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var states []ContainerState
		if err := json.Unmarshal([]byte(trimmed), &states); err != nil {
			return nil, fmt.Errorf("failed to parse compose ps output: %w", err)
		}
		return states, nil
	}

	var states []ContainerState
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var st ContainerState
		if err := json.Unmarshal([]byte(line), &st); err != nil {
			return nil, fmt.Errorf("failed to parse compose ps line %q: %w", line, err)
		}
		states = append(states, st)
	}
	return states, nil
}

// ContainerFor returns the state of one service's container, or
// ErrNotFound when compose has not created it.
func (c *Compose) ContainerFor(ctx context.Context, service string) (ContainerState, error) {
	states, err := c.Ps(ctx)
	if err != nil {
		return ContainerState{}, err
	}
	for _, st := range states {
		if st.Service == service {
			return st, nil
		}
	}
	return ContainerState{}, fmt.Errorf("service %s: %w", service, ErrNotFound)
}

// Logs returns the last tail lines of a service's log.
func (c *Compose) Logs(ctx context.Context, service string, tail int) (string, error) {
	return c.r.Run(ctx, "docker", c.args("logs", "--tail", fmt.Sprint(tail), service)...)
}

// NetworkExists reports whether the named docker network exists.
func (c *Compose) NetworkExists(ctx context.Context, name string) (bool, error) {
	out, err := c.r.Run(ctx, "docker", "network", "inspect", name)
	if err != nil {
		if outputSaysNotFound(out + err.Error()) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RemoveNetwork deletes a docker network, mapping already-absent to
// ErrNotFound.
func (c *Compose) RemoveNetwork(ctx context.Context, name string) error {
	out, err := c.r.Run(ctx, "docker", "network", "rm", name)
	if err != nil {
		if outputSaysNotFound(out + err.Error()) {
			return fmt.Errorf("network %s: %w", name, ErrNotFound)
		}
		return err
	}
	return nil
}

// RemoveVolume deletes a docker volume, mapping already-absent to
// ErrNotFound.
func (c *Compose) RemoveVolume(ctx context.Context, name string) error {
	out, err := c.r.Run(ctx, "docker", "volume", "rm", name)
	if err != nil {
		if outputSaysNotFound(out + err.Error()) {
			return fmt.Errorf("volume %s: %w", name, ErrNotFound)
		}
		return err
	}
	return nil
}

// ProjectVolumes lists the volume names labeled with this project.
func (c *Compose) ProjectVolumes(ctx context.Context) ([]string, error) {
	out, err := c.r.Run(ctx, "docker", "volume", "ls", "-q", "--filter", "label=com.docker.compose.project="+c.Project)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// ReadyCheck returns a probe check observing the service's container
// health. A container without a configured healthcheck counts as ready
// once running; "starting" and "unhealthy" are retryable; an exited
// container is flagged as crashed.
func (c *Compose) ReadyCheck(service string) probe.CheckFunc {
	return func(ctx context.Context) (probe.Status, error) {
		st, err := c.ContainerFor(ctx, service)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return probe.Status{Detail: "container not created yet"}, nil
			}
			return probe.Status{}, err
		}

		switch st.State {
		case "running":
			switch st.Health {
			case "", "healthy":
				return probe.Status{Ready: true, Detail: "running"}, nil
			case "unhealthy":
				return probe.Status{Detail: "running but unhealthy"}, nil
			default:
				return probe.Status{Detail: "health " + st.Health}, nil
			}
		case "exited", "dead":
			return probe.Status{Crashed: true, Detail: fmt.Sprintf("container %s (exit code %d)", st.State, st.ExitCode)}, nil
		default:
			return probe.Status{Detail: "state " + st.State}, nil
		}
	}
}

// DiagnoseFunc returns a probe diagnoser dumping the service's last
// log lines.
func (c *Compose) DiagnoseFunc(service string, tail int) probe.DiagnoseFunc {
	return func(ctx context.Context) string {
		out, err := c.Logs(ctx, service, tail)
		if err != nil {
			return fmt.Sprintf("failed to fetch logs for %s: %v", service, err)
		}
		return out
	}
}
