package probe

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietProber(attempts int, interval time.Duration) (*Prober, *bytes.Buffer) {
	var buf bytes.Buffer
	p := New(attempts, interval)
	p.Out = &buf
	return p, &buf
}

func TestWaitReadyImmediately(t *testing.T) {
	p, _ := quietProber(3, 10*time.Millisecond)

	state, err := p.Wait(context.Background(), Endpoint{
		Name: "svc",
		Check: func(ctx context.Context) (Status, error) {
			return Status{Ready: true}, nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, StateReady, state)
}

func TestWaitReadyAfterRetries(t *testing.T) {
	p, _ := quietProber(5, 5*time.Millisecond)

	calls := 0
	state, err := p.Wait(context.Background(), Endpoint{
		Name: "svc",
		Check: func(ctx context.Context) (Status, error) {
			calls++
			if calls < 3 {
				return Status{Detail: "starting"}, nil
			}
			return Status{Ready: true}, nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, StateReady, state)
	assert.Equal(t, 3, calls)
}

func TestWaitExhaustsBudget(t *testing.T) {
	p, _ := quietProber(4, 5*time.Millisecond)

	calls := 0
	start := time.Now()
	state, err := p.Wait(context.Background(), Endpoint{
		Name: "svc",
		Check: func(ctx context.Context) (Status, error) {
			calls++
			return Status{Detail: "never ready"}, nil
		},
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "did not become ready within 4 attempts")
	// Terminates within attempts x interval plus slack.
	assert.Less(t, elapsed, 4*5*time.Millisecond+500*time.Millisecond)
}

func TestWaitDumpsDiagnosticsExactlyOnce(t *testing.T) {
	p, buf := quietProber(3, 5*time.Millisecond)

	dumps := 0
	state, err := p.Wait(context.Background(), Endpoint{
		Name: "svc",
		Check: func(ctx context.Context) (Status, error) {
			return Status{Detail: "never ready"}, nil
		},
		Diagnose: func(ctx context.Context) string {
			dumps++
			return "last log lines"
		},
	})

	require.Error(t, err)
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, 1, dumps, "diagnostics must be emitted exactly once")
	assert.Equal(t, 1, strings.Count(buf.String(), "last log lines"))
}

func TestWaitCrashSurfacesDiagnosticsButKeepsPolling(t *testing.T) {
	p, buf := quietProber(4, 5*time.Millisecond)

	calls := 0
	dumps := 0
	state, err := p.Wait(context.Background(), Endpoint{
		Name: "svc",
		Check: func(ctx context.Context) (Status, error) {
			calls++
			if calls < 3 {
				// Restart loop during cold start.
				return Status{Crashed: true, Detail: "exited"}, nil
			}
			return Status{Ready: true}, nil
		},
		Diagnose: func(ctx context.Context) string {
			dumps++
			return "crash logs"
		},
	})

	require.NoError(t, err)
	assert.Equal(t, StateReady, state, "a restart loop may still converge")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, dumps)
	assert.Contains(t, buf.String(), "crash logs")
}

func TestWaitCheckErrorIsRetryable(t *testing.T) {
	p, _ := quietProber(3, 5*time.Millisecond)

	calls := 0
	state, err := p.Wait(context.Background(), Endpoint{
		Name: "svc",
		Check: func(ctx context.Context) (Status, error) {
			calls++
			if calls == 1 {
				return Status{}, errors.New("transient ps failure")
			}
			return Status{Ready: true}, nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, StateReady, state)
}

func TestWaitHonorsCancellation(t *testing.T) {
	p, _ := quietProber(100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	state, err := p.Wait(ctx, Endpoint{
		Name: "svc",
		Check: func(ctx context.Context) (Status, error) {
			return Status{Detail: "pending"}, nil
		},
	})

	require.Error(t, err)
	assert.Equal(t, StateFailed, state)
}

func TestWaitAllStopsAtFirstFailure(t *testing.T) {
	p, _ := quietProber(2, 5*time.Millisecond)

	secondProbed := false
	err := p.WaitAll(context.Background(), []Endpoint{
		{Name: "first", Check: func(ctx context.Context) (Status, error) {
			return Status{Detail: "never"}, nil
		}},
		{Name: "second", Check: func(ctx context.Context) (Status, error) {
			secondProbed = true
			return Status{Ready: true}, nil
		}},
	})

	require.Error(t, err)
	assert.False(t, secondProbed, "later endpoints depend on earlier ones")
}

func TestHTTPCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st, err := HTTPCheck(srv.Client(), srv.URL, nil)(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Ready)
}

func TestHTTPCheckConnectionRefusedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	st, err := HTTPCheck(nil, srv.URL, nil)(context.Background())
	require.NoError(t, err, "a transport error is not-ready, not fatal")
	assert.False(t, st.Ready)
	assert.Contains(t, st.Detail, "connection failed")
}

func TestHTTPCheckRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	st, err := HTTPCheck(srv.Client(), srv.URL, nil)(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Ready)
}

func TestDefaultHTTPOK(t *testing.T) {
	assert.True(t, DefaultHTTPOK(200))
	assert.True(t, DefaultHTTPOK(204))
	assert.True(t, DefaultHTTPOK(403), "a secured Jenkins answers 403 when up")
	assert.False(t, DefaultHTTPOK(404))
	assert.False(t, DefaultHTTPOK(503))
}
