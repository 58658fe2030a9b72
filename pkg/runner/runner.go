// Package runner shells out to the external orchestrator CLIs
// (docker, helm, kubectl). Everything above it takes the Runner
// interface so drivers are testable without real binaries.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes external commands.
type Runner interface {
	// Look reports whether the binary is available in PATH. A missing
	// binary is a prerequisite error: fatal, no retry.
	Look(binary string) error

	// Run executes the command and returns its combined output. On a
	// non-zero exit the output is still returned alongside the error so
	// callers can surface the orchestrator's own diagnostics.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// RunStreaming executes the command with stdout/stderr attached to
	// w, for long converge operations whose progress the operator
	// should see live.
	RunStreaming(ctx context.Context, w io.Writer, name string, args ...string) error
}

// PrereqError indicates a required CLI tool is not installed.
type PrereqError struct {
	Binary string
	Hint   string
}

func (e *PrereqError) Error() string {
	msg := fmt.Sprintf("%s binary not found in PATH", e.Binary)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

// ExecRunner is the real implementation backed by os/exec.
type ExecRunner struct {
	// Dir is the working directory for every command, empty = inherit.
	Dir string

	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
}

// Hints shown when a prerequisite binary is missing.
var installHints = map[string]string{
	"docker":  "Install Docker from https://docs.docker.com/get-docker/",
	"helm":    "Install Helm from https://helm.sh/docs/intro/install/",
	"kubectl": "Install kubectl from https://kubernetes.io/docs/tasks/tools/",
}

func (r *ExecRunner) Look(binary string) error {
	if _, err := exec.LookPath(binary); err != nil {
		return &PrereqError{Binary: binary, Hint: installHints[binary]}
	}
	return nil
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)

	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		return output, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return output, nil
}

func (r *ExecRunner) RunStreaming(ctx context.Context, w io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
