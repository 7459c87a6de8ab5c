package observability

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthServer owns the operational endpoints: /healthz, /readyz and,
// when a registry is provided, /metrics. It serves them on its own
// listener so the tap listener stays dedicated to intercepted traffic.
type HealthServer struct {
	ready atomic.Bool
	srv   *http.Server
	ln    net.Listener
}

// NewHealthServer creates a new health server.
func NewHealthServer() *HealthServer {
	return &HealthServer{}
}

// SetReady marks the server as ready to receive traffic.
func (h *HealthServer) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Handler returns the http.Handler behind Start, exposed for tests and
// for embedding into another mux.
func (h *HealthServer) Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	if reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return mux
}

// Listen binds addr. Call before Serve so Addr is available to the
// caller while Serve blocks in its own goroutine.
func (h *HealthServer) Listen(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.ln = ln
	h.srv = &http.Server{Handler: h.Handler(reg)}
	return nil
}

// Serve serves the operational endpoints on the bound listener. It
// blocks and returns http.ErrServerClosed after a clean shutdown.
func (h *HealthServer) Serve() error {
	return h.srv.Serve(h.ln)
}

// Addr returns the bound address after Listen, useful when addr was ":0".
func (h *HealthServer) Addr() string {
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}

// Shutdown stops the server started by Start.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	h.SetReady(false)
	if h.srv == nil {
		return nil
	}
	return h.srv.Shutdown(ctx)
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
	}
}
