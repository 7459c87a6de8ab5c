package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHealthServer_Healthz(t *testing.T) {
	h := NewHealthServer()
	srv := httptest.NewServer(h.Handler(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHealthServer_ReadyToggles(t *testing.T) {
	h := NewHealthServer()
	srv := httptest.NewServer(h.Handler(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before ready, got %d", resp.StatusCode)
	}

	h.SetReady(true)
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after ready, got %d", resp.StatusCode)
	}
}

func TestHealthServer_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	h := NewHealthServer()
	srv := httptest.NewServer(h.Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from metrics, got %d", resp.StatusCode)
	}
}

func TestHealthServer_ListenServeShutdown(t *testing.T) {
	h := NewHealthServer()
	if err := h.Listen("127.0.0.1:0", nil); err != nil {
		t.Fatalf("listen: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- h.Serve() }()

	h.SetReady(true)
	resp, err := http.Get("http://" + h.Addr() + "/readyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-served; err != http.ErrServerClosed {
		t.Errorf("expected ErrServerClosed, got %v", err)
	}
}

func TestHealthServer_NoMetricsWithoutRegistry(t *testing.T) {
	h := NewHealthServer()
	srv := httptest.NewServer(h.Handler(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 without registry, got %d", resp.StatusCode)
	}
}
