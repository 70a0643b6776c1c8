package vehicles

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/etr/core/backend"
	vehiclestatus "github.com/kilianp07/etr/core/vehiclestatus"
)

// Sender submits a vehicle command and returns its correlation id.
type Sender interface {
	SendCommand(name string, args ...any) string
}

// NewCommandHandler submits commands via POST /api/vehicles/{id}/commands/{name}.
// The command runs asynchronously; the response carries its id with status 202.
func NewCommandHandler(store vehiclestatus.Store, sender Sender) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, name := chi.URLParam(r, "id"), chi.URLParam(r, "name")
		if id == "" {
			http.NotFound(w, r)
			return
		}
		if !slices.Contains(backend.Commands(), name) {
			http.Error(w, "unknown command "+name, http.StatusNotFound)
			return
		}
		cmdID := sender.SendCommand(name, id)
		store.Track(cmdID, id)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"command_id": cmdID})
	})
}
