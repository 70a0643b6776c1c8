// Package backend defines the capability contract the engine needs from the
// component that talks to the remote vehicle service.
package backend

import (
	"context"

	"github.com/kilianp07/etr/core/model"
)

// Command names understood by Execute.
const (
	CommandVehicleData = "vehicle_data"
	CommandWakeUp      = "wake_up"
	CommandHonk        = "honk"
	CommandFlashLights = "flash_lights"
)

// Commands lists every known command name.
func Commands() []string {
	return []string{CommandVehicleData, CommandWakeUp, CommandHonk, CommandFlashLights}
}

// Backend talks to the remote system. Implementations must be safe for
// concurrent use by readers; SetToken is only called from exclusive
// operations.
type Backend interface {
	// ListVehicles returns one summary frame per vehicle, each with at least
	// "id" and "state".
	ListVehicles(ctx context.Context) ([]model.Frame, error)
	// FetchDetail returns the full frame of an online vehicle.
	FetchDetail(ctx context.Context, id string) (model.Frame, error)
	// VerifyToken performs one cheap authenticated call.
	VerifyToken(ctx context.Context) error
	// ExchangeCredentials trades a user name and password for a token
	// payload containing at least "access_token".
	ExchangeCredentials(ctx context.Context, user, password string) (map[string]any, error)
	// Execute runs a named command with its arguments.
	Execute(ctx context.Context, name string, args ...any) (model.Frame, error)

	Token() string
	SetToken(token string)
}

// AccessToken extracts the access token from an exchange payload.
func AccessToken(payload map[string]any) string {
	tok, _ := payload["access_token"].(string)
	return tok
}
