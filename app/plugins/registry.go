package plugins

import (
	"fmt"
	"sort"

	"github.com/kilianp07/etr/config"
	"github.com/kilianp07/etr/core/backend"
)

// BackendFactory builds a vehicle API backend from the configuration.
type BackendFactory func(cfg *config.Config) (backend.Backend, error)

var Backends = map[string]BackendFactory{}

func RegisterBackend(name string, f BackendFactory) { Backends[name] = f }

// BackendModes lists the registered backend modes in order.
func BackendModes() []string {
	out := make([]string, 0, len(Backends))
	for name := range Backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewBackend builds the backend registered for mode.
func NewBackend(cfg *config.Config, mode string) (backend.Backend, error) {
	f, ok := Backends[mode]
	if !ok {
		return nil, fmt.Errorf("unknown backend mode %q", mode)
	}
	return f(cfg)
}
