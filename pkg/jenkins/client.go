// Package jenkins is a minimal client for the Jenkins remote API: the
// crumb issuer plus idempotent create-or-update of pipeline jobs.
package jenkins

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chalkan3/democtl/pkg/retry"
)

// ErrCrumb indicates the CSRF crumb could not be fetched. Fatal for
// the configurator, but callers degrade gracefully: the run continues
// to validation with reduced scope.
var ErrCrumb = errors.New("failed to obtain CSRF crumb")

// Crumb is a single-use anti-forgery token. It is fetched immediately
// before each mutating call and never reused across requests.
type Crumb struct {
	Field string
	Value string
}

// Client talks to one Jenkins controller with basic auth.
type Client struct {
	base     *url.URL
	user     string
	password string
	hc       *http.Client
}

// New returns a Client for the controller at baseURL.
func New(baseURL, user, password string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Jenkins URL %q: %w", baseURL, err)
	}
	return &Client{
		base:     u,
		user:     user,
		password: password,
		hc:       &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SetHTTPClient overrides the underlying HTTP client, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.hc = hc
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(c.user, c.password)
	return c.hc.Do(req)
}

// Ping verifies the controller answers at all. 403 counts: it means
// Jenkins is up but anonymous read is disabled.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/json", nil), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("jenkins unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("jenkins returned %s", resp.Status)
	}
	return nil
}

// FetchCrumb obtains a fresh CSRF crumb from the crumb issuer. The
// xpath form yields "Field:Value" in one round trip. Transient
// transport failures are retried briefly; a definitive rejection is
// not.
func (c *Client) FetchCrumb(ctx context.Context) (Crumb, error) {
	query := url.Values{"xpath": {`concat(//crumbRequestField,":",//crumb)`}}
	endpoint := c.endpoint("/crumbIssuer/api/xml", query)

	r := retry.New(retry.QuickConfig())
	body, err := retry.DoWithDataContext(ctx, r, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", err
		}
		resp, err := c.do(req)
		if err != nil {
			return "", retry.NewRetryableError(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("crumb issuer returned %s", resp.Status)
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", retry.NewRetryableError(err)
		}
		return string(raw), nil
	})
	if err != nil {
		return Crumb{}, fmt.Errorf("%w: %v", ErrCrumb, err)
	}

	field, value, ok := strings.Cut(strings.TrimSpace(body), ":")
	if !ok || field == "" || value == "" {
		return Crumb{}, fmt.Errorf("%w: malformed crumb response %q", ErrCrumb, body)
	}
	return Crumb{Field: field, Value: value}, nil
}

// JobExists probes the job's canonical config URL: 200 means it
// exists, 404 means it does not.
func (c *Client) JobExists(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobConfigURL(name), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.do(req)
	if err != nil {
		return false, fmt.Errorf("failed to probe job %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %s probing job %s", resp.Status, name)
	}
}

func (c *Client) jobConfigURL(name string) string {
	return c.endpoint("/job/"+url.PathEscape(name)+"/config.xml", nil)
}

// CreateOrUpdateJob pushes the job definition, creating the job when
// absent and replacing its config when present. Re-running with the
// same name and definition leaves exactly one job holding the latest
// definition. Returns true when the job was created.
func (c *Client) CreateOrUpdateJob(ctx context.Context, name string, configXML []byte) (bool, error) {
	exists, err := c.JobExists(ctx, name)
	if err != nil {
		return false, err
	}

	// A fresh crumb per mutating call: crumbs are single-use.
	crumb, err := c.FetchCrumb(ctx)
	if err != nil {
		return false, err
	}

	endpoint := c.jobConfigURL(name)
	if !exists {
		endpoint = c.endpoint("/createItem", url.Values{"name": {name}})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(configXML))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set(crumb.Field, crumb.Value)

	resp, err := c.do(req)
	if err != nil {
		return false, fmt.Errorf("failed to push job %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return false, fmt.Errorf("jenkins rejected job %s: %s: %s", name, resp.Status, strings.TrimSpace(string(body)))
	}
	return !exists, nil
}

// TriggerBuild queues a build of the job so a later validation pass
// can confirm the job is actually runnable.
func (c *Client) TriggerBuild(ctx context.Context, name string) error {
	crumb, err := c.FetchCrumb(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/job/"+url.PathEscape(name)+"/build", nil), nil)
	if err != nil {
		return err
	}
	req.Header.Set(crumb.Field, crumb.Value)

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("failed to trigger build of %s: %w", name, err)
	}
	defer resp.Body.Close()

	// Jenkins answers 201 with a queue Location header.
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s triggering build of %s", resp.Status, name)
	}
	return nil
}
