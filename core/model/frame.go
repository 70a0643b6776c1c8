package model

import (
	"fmt"
	"strconv"
)

// VehicleState is the connectivity state reported for a vehicle.
type VehicleState string

const (
	StateOnline  VehicleState = "online"
	StateAsleep  VehicleState = "asleep"
	StateOffline VehicleState = "offline"
)

// Frame is one vehicle's state document at a point in time. The engine only
// relies on the "id" and "state" keys; every other key is passed through.
// Frames are produced by a backend and never mutated by the engine.
type Frame map[string]any

// ID returns the vehicle identifier as a string. Numeric identifiers are
// rendered without exponent so large ids survive JSON round trips.
func (f Frame) ID() string {
	switch v := f["id"].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// State returns the reported vehicle state.
func (f Frame) State() VehicleState {
	s, _ := f["state"].(string)
	return VehicleState(s)
}

// DisplayName returns the optional human readable name.
func (f Frame) DisplayName() string {
	s, _ := f["display_name"].(string)
	return s
}

// Section returns a nested document, or nil when absent.
func (f Frame) Section(key string) map[string]any {
	m, _ := f[key].(map[string]any)
	return m
}
