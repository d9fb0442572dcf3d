package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stackwatch/warden/internal/config"
)

func TestNewSelectsConfiguredProbe(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil spec")
	}
	if _, err := New(&config.Health{}); err == nil {
		t.Fatalf("expected error for empty spec")
	}

	prober, err := New(&config.Health{HTTP: &config.HTTPProbeSpec{URL: "http://127.0.0.1:1/healthz"}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := prober.(*httpProber); !ok {
		t.Fatalf("expected http prober, got %T", prober)
	}

	prober, err = New(&config.Health{TCP: &config.TCPProbeSpec{Address: "127.0.0.1:1"}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := prober.(*tcpProber); !ok {
		t.Fatalf("expected tcp prober, got %T", prober)
	}

	prober, err = New(&config.Health{Command: &config.CommandProbe{Command: []string{"sh", "-c", "exit 0"}}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := prober.(*commandProber); !ok {
		t.Fatalf("expected command prober, got %T", prober)
	}
}

func TestHTTPProbeDefaultAccepts2xxOnly(t *testing.T) {
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	prober := newHTTPProber(&config.HTTPProbeSpec{URL: srv.URL})
	if err := prober.Probe(context.Background()); err != nil {
		t.Fatalf("expected 204 to pass: %v", err)
	}

	status = http.StatusServiceUnavailable
	err := prober.Probe(context.Background())
	if err == nil {
		t.Fatalf("expected 503 to fail")
	}
	if !strings.Contains(err.Error(), "status=503") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTPProbeExpectStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	prober := newHTTPProber(&config.HTTPProbeSpec{URL: srv.URL, ExpectStatus: []int{401}})
	if err := prober.Probe(context.Background()); err != nil {
		t.Fatalf("expected 401 to satisfy expectStatus: %v", err)
	}

	prober = newHTTPProber(&config.HTTPProbeSpec{URL: srv.URL, ExpectStatus: []int{200}})
	if err := prober.Probe(context.Background()); err == nil {
		t.Fatalf("expected mismatch to fail")
	}
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	prober := newTCPProber(&config.TCPProbeSpec{Address: addr})
	if err := prober.Probe(context.Background()); err != nil {
		t.Fatalf("probe against listener failed: %v", err)
	}

	ln.Close()
	if err := prober.Probe(context.Background()); err == nil {
		t.Fatalf("expected probe against closed listener to fail")
	}
}

func TestCommandProbeExitCodes(t *testing.T) {
	prober, err := newCommandProber(&config.CommandProbe{Command: []string{"sh", "-c", "exit 0"}})
	if err != nil {
		t.Fatalf("newCommandProber: %v", err)
	}
	if err := prober.Probe(context.Background()); err != nil {
		t.Fatalf("expected exit 0 to pass: %v", err)
	}

	prober, err = newCommandProber(&config.CommandProbe{Command: []string{"sh", "-c", "exit 7"}})
	if err != nil {
		t.Fatalf("newCommandProber: %v", err)
	}
	probeErr := prober.Probe(context.Background())
	if probeErr == nil {
		t.Fatalf("expected exit 7 to fail")
	}
	if !strings.Contains(probeErr.Error(), "exit 7") {
		t.Fatalf("unexpected error: %v", probeErr)
	}
}

func TestCheckBoundsAttemptDuration(t *testing.T) {
	blocked := ProberFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := Check(context.Background(), blocked, 50*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("check did not respect timeout, took %v", elapsed)
	}
}
