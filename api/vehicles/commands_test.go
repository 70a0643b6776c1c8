package vehicles

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	vehiclestatus "github.com/kilianp07/etr/core/vehiclestatus"
)

type stubSender struct {
	name string
	args []any
}

func (s *stubSender) SendCommand(name string, args ...any) string {
	s.name = name
	s.args = args
	return "cmd-1"
}

func newRouter(store vehiclestatus.Store, sender Sender) http.Handler {
	r := chi.NewRouter()
	Routes(r, store, sender)
	return r
}

func TestCommandHandler_Accepted(t *testing.T) {
	store := vehiclestatus.NewMemoryStore()
	sender := &stubSender{}
	h := newRouter(store, sender)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/vehicles/42/commands/honk", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status %d", rr.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["command_id"] != "cmd-1" {
		t.Fatalf("unexpected body %v", out)
	}
	if sender.name != "honk" || len(sender.args) != 1 || sender.args[0] != "42" {
		t.Fatalf("unexpected call %s %v", sender.name, sender.args)
	}
	if !store.Complete(vehiclestatus.LastCommand{ID: "cmd-1", Name: "honk", OK: true}) {
		t.Fatal("command not tracked")
	}
}

func TestCommandHandler_Rejects(t *testing.T) {
	sender := &stubSender{}
	h := newRouter(vehiclestatus.NewMemoryStore(), sender)
	cases := []struct {
		method, path string
		code         int
	}{
		{"GET", "/api/vehicles/42/commands/honk", http.StatusMethodNotAllowed},
		{"POST", "/api/vehicles/42/commands/self_destruct", http.StatusNotFound},
		{"POST", "/api/vehicles/42/kpis", http.StatusNotFound},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(c.method, c.path, nil))
		if rr.Code != c.code {
			t.Errorf("%s %s: status %d want %d", c.method, c.path, rr.Code, c.code)
		}
	}
	if sender.name != "" {
		t.Fatalf("rejected request reached sender: %s", sender.name)
	}
}

func TestHealth(t *testing.T) {
	h := newRouter(vehiclestatus.NewMemoryStore(), &stubSender{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
}
