package matrix_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/igorvasilek/hoshi/internal/hoshi/matrix"
)

type homeserver struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
	auth   []string
}

func (h *homeserver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.paths = append(h.paths, r.Method+" "+r.URL.Path)
	h.auth = append(h.auth, r.Header.Get("Authorization"))
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	h.bodies = append(h.bodies, body)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.Contains(r.URL.Path, "/join"):
		_, _ = w.Write([]byte(`{"room_id":"!audit:example.com"}`))
	default:
		_, _ = w.Write([]byte(`{"event_id":"$evt1"}`))
	}
}

func newClient(t *testing.T) (*matrix.Client, *homeserver) {
	t.Helper()
	hs := &homeserver{}
	srv := httptest.NewServer(hs)
	t.Cleanup(srv.Close)

	c, err := matrix.New(matrix.Config{
		Homeserver:  srv.URL,
		UserID:      "@hoshi:example.com",
		AccessToken: "syt_test",
	})
	if err != nil {
		t.Fatalf("matrix.New: %v", err)
	}
	return c, hs
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := matrix.New(matrix.Config{Homeserver: "https://example.com"}); err == nil {
		t.Fatal("expected error for incomplete config")
	}
}

func TestSendNotice(t *testing.T) {
	c, hs := newClient(t)

	if err := c.SendNotice(context.Background(), "!audit:example.com", "admin added"); err != nil {
		t.Fatalf("SendNotice: %v", err)
	}

	if len(hs.paths) != 1 {
		t.Fatalf("expected 1 request, got %d", len(hs.paths))
	}
	if !strings.HasPrefix(hs.paths[0], "PUT ") || !strings.Contains(hs.paths[0], "/send/m.room.message/") {
		t.Errorf("unexpected request %q", hs.paths[0])
	}
	if hs.auth[0] != "Bearer syt_test" {
		t.Errorf("unexpected auth header %q", hs.auth[0])
	}
	if hs.bodies[0]["msgtype"] != "m.notice" || hs.bodies[0]["body"] != "admin added" {
		t.Errorf("unexpected body %v", hs.bodies[0])
	}
}

func TestJoinRoom(t *testing.T) {
	c, hs := newClient(t)

	if err := c.JoinRoom(context.Background(), "!audit:example.com"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if !strings.Contains(hs.paths[0], "/join") {
		t.Errorf("unexpected request %q", hs.paths[0])
	}
}
