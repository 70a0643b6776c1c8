package vehicles

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	vehiclestatus "github.com/kilianp07/etr/core/vehiclestatus"
)

// NewStatusHandler returns an HTTP handler exposing vehicle status data via GET /api/vehicles/status.
func NewStatusHandler(store vehiclestatus.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f := vehiclestatus.Filter{State: r.URL.Query().Get("state")}
		entries := store.List(f)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// Routes mounts the health, status and command endpoints on r.
func Routes(r chi.Router, store vehiclestatus.Store, sender Sender) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Route("/api/vehicles", func(r chi.Router) {
		r.Method(http.MethodGet, "/status", NewStatusHandler(store))
		r.Method(http.MethodPost, "/{id}/commands/{name}", NewCommandHandler(store, sender))
	})
}
