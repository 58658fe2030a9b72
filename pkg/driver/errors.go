// Package driver wraps the external orchestrators' converge and
// destroy primitives (docker compose, helm, kubectl) behind typed
// calls on a runner.Runner.
package driver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound marks a resource that is already absent. Teardown treats
// it as success (idempotent cleanup), not failure.
var ErrNotFound = errors.New("resource not found")

// ConvergeError carries the orchestrator's captured output when a
// converge call is rejected. Convergence failures are fatal for the
// run: callers must not proceed to readiness probing.
type ConvergeError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ConvergeError) Error() string {
	return fmt.Sprintf("%s converge failed: %v", e.Tool, e.Err)
}

func (e *ConvergeError) Unwrap() error {
	return e.Err
}

// outputSaysNotFound matches the various phrasings the orchestrators
// use for already-absent resources.
func outputSaysNotFound(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range []string{"not found", "no such", "does not exist", "notfound"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
