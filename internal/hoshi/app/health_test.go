package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/igorvasilek/hoshi/internal/hoshi/app"
	"github.com/igorvasilek/hoshi/internal/hoshi/store"
)

type statsStore struct {
	stats store.Stats
	err   error
}

func (s *statsStore) Stats(context.Context) (store.Stats, error) { return s.stats, s.err }

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return w.Code, resp
}

func TestHealthServer_Health(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &statsStore{}, time.Now(), nil)

	code, resp := get(t, hs, "/health")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestHealthServer_Status(t *testing.T) {
	gauges := func() map[string]int { return map[string]int{"pending_sessions": 2} }
	hs := app.NewHealthServer("127.0.0.1:0", &statsStore{stats: store.Stats{Users: 3, Turns: 12}}, time.Now().Add(-time.Minute), gauges)

	code, resp := get(t, hs, "/status")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["users"].(float64) != 3 || resp["turns"].(float64) != 12 {
		t.Errorf("unexpected counts: %v", resp)
	}
	if resp["uptime_seconds"].(float64) < 59 {
		t.Errorf("uptime too small: %v", resp["uptime_seconds"])
	}
	runtime := resp["runtime"].(map[string]any)
	if runtime["pending_sessions"].(float64) != 2 {
		t.Errorf("unexpected runtime gauges: %v", runtime)
	}
}

func TestHealthServer_StatusDegraded(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &statsStore{err: errors.New("database is locked")}, time.Now(), nil)

	code, resp := get(t, hs, "/status")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if resp["status"] != "degraded" {
		t.Errorf("expected degraded, got %v", resp["status"])
	}
}

func TestHealthServer_UnknownRoute(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &statsStore{}, time.Now(), nil)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	hs.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
