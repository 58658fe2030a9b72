// Package validate performs the best-effort post-deploy checks:
// reachability probes against every exposed service plus metrics
// integration checks against Prometheus. Validation never aborts the
// run; it aggregates results and always prints a final report.
package validate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// CheckStatus represents the status of a single validation check
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusFail CheckStatus = "fail"
	StatusSkip CheckStatus = "skip"
)

// CheckResult represents the result of a single validation check
type CheckResult struct {
	Name     string
	Status   CheckStatus
	Message  string
	Duration time.Duration
}

// Summary provides aggregate statistics
type Summary struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// Report aggregates every check for one validation pass.
type Report struct {
	Deployment string
	CheckedAt  time.Time
	Duration   time.Duration
	Checks     []CheckResult
	Summary    Summary
}

// Add records a check result and updates the summary.
func (r *Report) Add(c CheckResult) {
	r.Checks = append(r.Checks, c)
	r.Summary.Total++
	switch c.Status {
	case StatusPass:
		r.Summary.Passed++
	case StatusFail:
		r.Summary.Failed++
	default:
		r.Summary.Skipped++
	}
}

// Failed reports whether any check failed.
func (r *Report) Failed() bool {
	return r.Summary.Failed > 0
}

// HTTPTarget is one service reachability check.
type HTTPTarget struct {
	Name string
	URL  string

	// OK judges the response status; nil accepts 2xx and 403.
	OK func(status int) bool
}

// Validator runs the configured checks.
type Validator struct {
	Deployment string
	HTTPClient *http.Client

	// Targets are probed in order.
	Targets []HTTPTarget

	// PrometheusURL enables the metrics integration checks when set.
	PrometheusURL string

	// ScrapeJob is the Prometheus job name expected to be scraping
	// Jenkins.
	ScrapeJob string
}

// Run executes every check and returns the aggregated report. It
// always completes: individual failures are recorded, never raised.
func (v *Validator) Run(ctx context.Context) *Report {
	start := time.Now()
	report := &Report{Deployment: v.Deployment, CheckedAt: start}

	hc := v.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	for _, target := range v.Targets {
		report.Add(v.checkHTTP(ctx, hc, target))
	}

	if v.PrometheusURL != "" {
		targetsCheck, queryCheck := v.checkPrometheus(ctx)
		report.Add(targetsCheck)
		report.Add(queryCheck)
	}

	report.Duration = time.Since(start)
	return report
}

func (v *Validator) checkHTTP(ctx context.Context, hc *http.Client, target HTTPTarget) CheckResult {
	start := time.Now()
	result := CheckResult{Name: target.Name + " reachable"}

	ok := target.OK
	if ok == nil {
		ok = func(status int) bool {
			return (status >= 200 && status < 300) || status == http.StatusForbidden
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	resp, err := hc.Do(req)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreachable: %v", err)
		result.Duration = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	if ok(resp.StatusCode) {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s -> %s", target.URL, resp.Status)
	} else {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s -> unexpected %s", target.URL, resp.Status)
	}
	result.Duration = time.Since(start)
	return result
}

// checkPrometheus verifies the Jenkins scrape job is present and
// healthy, first via the targets endpoint and then with an instant
// query of up{job}.
func (v *Validator) checkPrometheus(ctx context.Context) (CheckResult, CheckResult) {
	targetsResult := CheckResult{Name: "prometheus scrape targets"}
	queryResult := CheckResult{Name: "jenkins metrics up"}

	start := time.Now()
	client, err := api.NewClient(api.Config{Address: v.PrometheusURL})
	if err != nil {
		msg := fmt.Sprintf("failed to build prometheus client: %v", err)
		targetsResult.Status, targetsResult.Message = StatusFail, msg
		queryResult.Status, queryResult.Message = StatusSkip, "skipped: no prometheus client"
		targetsResult.Duration = time.Since(start)
		return targetsResult, queryResult
	}
	promAPI := promv1.NewAPI(client)

	targets, err := promAPI.Targets(ctx)
	switch {
	case err != nil:
		targetsResult.Status = StatusFail
		targetsResult.Message = fmt.Sprintf("targets query failed: %v", err)
	default:
		healthy, total := 0, 0
		for _, t := range targets.Active {
			if string(t.Labels[model.LabelName("job")]) != v.ScrapeJob {
				continue
			}
			total++
			if t.Health == promv1.HealthGood {
				healthy++
			}
		}
		switch {
		case total == 0:
			targetsResult.Status = StatusFail
			targetsResult.Message = fmt.Sprintf("no active targets for job %q", v.ScrapeJob)
		case healthy < total:
			targetsResult.Status = StatusFail
			targetsResult.Message = fmt.Sprintf("%d/%d targets healthy for job %q", healthy, total, v.ScrapeJob)
		default:
			targetsResult.Status = StatusPass
			targetsResult.Message = fmt.Sprintf("%d/%d targets healthy for job %q", healthy, total, v.ScrapeJob)
		}
	}
	targetsResult.Duration = time.Since(start)

	start = time.Now()
	val, _, err := promAPI.Query(ctx, fmt.Sprintf("up{job=%q}", v.ScrapeJob), time.Now())
	switch {
	case err != nil:
		queryResult.Status = StatusFail
		queryResult.Message = fmt.Sprintf("instant query failed: %v", err)
	default:
		vec, ok := val.(model.Vector)
		if !ok || len(vec) == 0 {
			queryResult.Status = StatusFail
			queryResult.Message = fmt.Sprintf("up{job=%q} returned no samples", v.ScrapeJob)
			break
		}
		up := 0
		for _, sample := range vec {
			if sample.Value == 1 {
				up++
			}
		}
		if up == len(vec) {
			queryResult.Status = StatusPass
			queryResult.Message = fmt.Sprintf("%d/%d instances reporting up", up, len(vec))
		} else {
			queryResult.Status = StatusFail
			queryResult.Message = fmt.Sprintf("%d/%d instances reporting up", up, len(vec))
		}
	}
	queryResult.Duration = time.Since(start)

	return targetsResult, queryResult
}

// PrintReport prints the validation report in a formatted way
func (r *Report) PrintReport() {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Printf("  Validation Report: %s\n", r.Deployment)
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Printf("  Checked At: %s\n", r.CheckedAt.Format(time.RFC3339))
	fmt.Printf("  Duration:   %s\n", r.Duration.Round(time.Millisecond))
	fmt.Println()

	for _, check := range r.Checks {
		icon := getStatusIcon(check.Status)
		statusColor := getStatusColor(check.Status)
		statusColor.Printf("  %s %s\n", icon, check.Name)
		fmt.Printf("     %s\n", check.Message)
	}

	fmt.Println()
	fmt.Println("─────────────────────────────────────────────────────────────────────")
	overall := "PASS"
	overallColor := color.New(color.FgGreen)
	if r.Failed() {
		overall = "FAIL"
		overallColor = color.New(color.FgRed)
	}
	overallColor.Printf("  Overall: %s", overall)
	fmt.Printf("  (%d passed, %d failed, %d skipped)\n", r.Summary.Passed, r.Summary.Failed, r.Summary.Skipped)
	fmt.Println("═══════════════════════════════════════════════════════════════════")
}

// PrintCompact prints a one-line summary plus any failed checks.
func (r *Report) PrintCompact() {
	status := "PASS"
	if r.Failed() {
		status = "FAIL"
	}
	fmt.Printf("\n%s %s: %s (%d passed, %d failed, %d skipped)\n",
		getStatusIcon(statusForOverall(r)), r.Deployment, status,
		r.Summary.Passed, r.Summary.Failed, r.Summary.Skipped)

	for _, check := range r.Checks {
		if check.Status == StatusFail {
			fmt.Printf("   %s %s: %s\n", getStatusIcon(check.Status), check.Name, check.Message)
		}
	}
	fmt.Println()
}

func statusForOverall(r *Report) CheckStatus {
	if r.Failed() {
		return StatusFail
	}
	return StatusPass
}

func getStatusIcon(status CheckStatus) string {
	switch status {
	case StatusPass:
		return "[PASS]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[SKIP]"
	}
}

func getStatusColor(status CheckStatus) *color.Color {
	switch status {
	case StatusPass:
		return color.New(color.FgGreen)
	case StatusFail:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

// JenkinsOK accepts the statuses a secured Jenkins answers on its root
// URL.
func JenkinsOK(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusForbidden
}

// GrafanaOK accepts Grafana's health statuses, including the redirect
// to the login page.
func GrafanaOK(status int) bool {
	return status >= 200 && status < 400
}
