package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeProvider struct {
	conns   int
	rooms   []string
	plugins []string
}

func (f *fakeProvider) Connections() int        { return f.conns }
func (f *fakeProvider) Rooms() []string         { return f.rooms }
func (f *fakeProvider) Uptime() time.Duration   { return 90 * time.Second }
func (f *fakeProvider) LoadedPlugins() []string { return f.plugins }

func get(t *testing.T, s *Server, path string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("bad json %q: %v", body, err)
	}
	return out
}

func TestHealth(t *testing.T) {
	s := New("node-a", &fakeProvider{plugins: []string{"greeter 1.0.0"}}, nil)

	out := get(t, s, "/health")
	if out["status"] != "ok" || out["name"] != "node-a" {
		t.Fatalf("unexpected health payload: %v", out)
	}
	if out["uptime"] != "1m30s" {
		t.Fatalf("unexpected uptime: %v", out["uptime"])
	}
}

func TestConnectionsAndRooms(t *testing.T) {
	s := New("node-a", &fakeProvider{conns: 7, rooms: []string{"ABCDEF", "QWERTY"}}, nil)

	out := get(t, s, "/connections")
	if out["connections"] != float64(7) {
		t.Fatalf("unexpected connections: %v", out)
	}

	out = get(t, s, "/rooms")
	if out["count"] != float64(2) {
		t.Fatalf("unexpected room count: %v", out)
	}
}
