package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/igorvasilek/hoshi/common/version"
	"github.com/igorvasilek/hoshi/internal/hoshi/store"
)

// HealthServer exposes /health and /status.
// It is optional; Hoshi runs without it when HTTPAddr is empty.
type HealthServer struct {
	addr      string
	store     statusProvider
	gauges    func() map[string]int
	startedAt time.Time
	server    *http.Server
	router    chi.Router
}

// statusProvider is the minimal interface the health server needs from Store.
type statusProvider interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Commit     string         `json:"commit"`
	BuildTime  string         `json:"build_time"`
	StartedAt  time.Time      `json:"started_at"`
	UptimeSecs float64        `json:"uptime_seconds"`
	Users      int64          `json:"users"`
	Turns      int64          `json:"turns"`
	Runtime    map[string]int `json:"runtime,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewHealthServer creates and configures the HTTP server (does not start it).
// gauges, when non-nil, adds in-memory counters to /status.
func NewHealthServer(addr string, sp statusProvider, startedAt time.Time, gauges func() map[string]int) *HealthServer {
	hs := &HealthServer{
		addr:      addr,
		store:     sp,
		gauges:    gauges,
		startedAt: startedAt,
	}
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Get("/health", hs.handleHealth)
	r.Get("/status", hs.handleStatus)
	hs.router = r
	return hs
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live network listener (e.g. with httptest.NewRecorder).
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Start begins listening in the background. Blocks until the listener is
// established so the caller knows the port is open before returning.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}

	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("health server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("health server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		h.Stop()
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (h *HealthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("health server shutdown error", "err", err)
	}
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

// handleStatus responds with runtime statistics. A failing store turns the
// status into "degraded" with a 503.
func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  h.startedAt,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
	}
	code := http.StatusOK
	if h.store != nil {
		st, err := h.store.Stats(r.Context())
		if err != nil {
			slog.Warn("status: stats query failed", "err", err)
			resp.Status, resp.Error = "degraded", "storage unavailable"
			code = http.StatusServiceUnavailable
		} else {
			resp.Users, resp.Turns = st.Users, st.Turns
		}
	}
	if h.gauges != nil {
		resp.Runtime = h.gauges()
	}
	writeJSON(w, code, resp)
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
