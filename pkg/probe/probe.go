// Package probe implements readiness probing for freshly deployed
// services: fixed-interval polling with a bounded attempt budget, a
// context deadline derived from that budget, and a single diagnostic
// log dump on failure.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/chalkan3/democtl/pkg/retry"
)

// State of an endpoint as seen by the prober. There is no transition
// out of Ready or Failed.
type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Status is one observation of an endpoint.
type Status struct {
	// Ready means the endpoint can accept traffic.
	Ready bool

	// Detail is a short human-readable description of the current state.
	Detail string

	// Crashed marks conditions worth surfacing immediately (container
	// exited, pod failed). The prober dumps diagnostics once but keeps
	// polling: a restart loop during cold start may still converge.
	Crashed bool
}

// CheckFunc performs one readiness observation.
type CheckFunc func(ctx context.Context) (Status, error)

// DiagnoseFunc returns diagnostic output (typically the last N log
// lines of the target) for failure reporting.
type DiagnoseFunc func(ctx context.Context) string

// Endpoint is one service to wait for.
type Endpoint struct {
	Name     string
	Check    CheckFunc
	Diagnose DiagnoseFunc
}

// Prober polls endpoints until ready or the attempt budget runs out.
type Prober struct {
	Interval time.Duration
	Attempts int

	// Out receives progress and diagnostic lines, defaults to stderr.
	Out io.Writer

	// ShowSpinner enables the interactive spinner between attempts.
	ShowSpinner bool
}

// New returns a Prober with the given budget.
func New(attempts int, interval time.Duration) *Prober {
	return &Prober{Interval: interval, Attempts: attempts}
}

func (p *Prober) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stderr
}

// Wait polls the endpoint until it reports ready, returning the final
// state. On exhausting the budget (or context cancellation) the state
// is StateFailed and diagnostics have been emitted exactly once.
func (p *Prober) Wait(ctx context.Context, ep Endpoint) (State, error) {
	cfg := retry.FixedConfig(p.Attempts, p.Interval)

	var spin *spinner.Spinner
	if p.ShowSpinner {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(p.out()))
		spin.Suffix = fmt.Sprintf(" Waiting for %s...", ep.Name)
		spin.Start()
		defer spin.Stop()
	}

	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		msg := fmt.Sprintf(" Waiting for %s (attempt %d/%d): %v", ep.Name, attempt, p.Attempts, err)
		if spin != nil {
			spin.Suffix = msg
		} else {
			fmt.Fprintln(p.out(), msg)
		}
	}

	// Deadline derived from the budget so the loop can never outlive
	// attempts x interval regardless of how long checks take.
	deadline := cfg.Budget() + p.Interval
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	diagnosed := false
	dump := func() {
		if diagnosed || ep.Diagnose == nil {
			return
		}
		diagnosed = true
		if spin != nil {
			spin.Stop()
		}
		color.New(color.FgYellow).Fprintf(p.out(), "--- diagnostics for %s ---\n", ep.Name)
		fmt.Fprintln(p.out(), ep.Diagnose(context.WithoutCancel(ctx)))
		color.New(color.FgYellow).Fprintf(p.out(), "--- end diagnostics ---\n")
		if spin != nil {
			spin.Start()
		}
	}

	err := retry.New(cfg).DoWithContext(ctx, func() error {
		st, err := ep.Check(ctx)
		if err != nil {
			return retry.NewRetryableError(err)
		}
		if st.Crashed {
			dump()
		}
		if st.Ready {
			return nil
		}
		return retry.NewRetryableError(fmt.Errorf("not ready: %s", st.Detail))
	})
	if err != nil {
		dump()
		return StateFailed, fmt.Errorf("%s did not become ready within %d attempts (%v apart): %w", ep.Name, p.Attempts, p.Interval, err)
	}
	return StateReady, nil
}

// WaitAll probes endpoints sequentially in the given order, stopping
// at the first failure. Ordering matters: later endpoints usually
// depend on earlier ones being up.
func (p *Prober) WaitAll(ctx context.Context, eps []Endpoint) error {
	for _, ep := range eps {
		if _, err := p.Wait(ctx, ep); err != nil {
			return err
		}
	}
	return nil
}

// HTTPCheck returns a CheckFunc hitting url and applying ok to the
// response status. A transport error counts as not-ready, not fatal.
func HTTPCheck(client *http.Client, url string, ok func(status int) bool) CheckFunc {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if ok == nil {
		ok = DefaultHTTPOK
	}
	return func(ctx context.Context) (Status, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Status{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return Status{Detail: fmt.Sprintf("connection failed: %v", err)}, nil
		}
		defer resp.Body.Close()

		if ok(resp.StatusCode) {
			return Status{Ready: true, Detail: resp.Status}, nil
		}
		return Status{Detail: fmt.Sprintf("HTTP %s", resp.Status)}, nil
	}
}

// DefaultHTTPOK accepts any 2xx plus 403: Jenkins answers 403 on the
// root URL once it is up but before anonymous read is granted.
func DefaultHTTPOK(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusForbidden
}
