package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/events"
)

var commandTimeout time.Duration

var commandCmd = &cobra.Command{
	Use:   "command <name> <vehicle_id>",
	Short: "Send a command to a vehicle and print its result",
	Long:  "Send a command to a vehicle. Known commands: " + strings.Join(backend.Commands(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE:  runCommand,
}

func init() {
	commandCmd.Flags().DurationVar(&commandTimeout, "timeout", 10*time.Second, "time to wait for the result")
	rootCmd.AddCommand(commandCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	name, vehicleID := args[0], args[1]
	if !slices.Contains(backend.Commands(), name) {
		return fmt.Errorf("%w: %s", backend.ErrUnknownCommand, name)
	}
	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)

	completed, unsub, err := svc.Engine.Bus().Subscribe(4, events.CommandCompleted)
	if err != nil {
		return err
	}
	defer unsub()

	id := svc.Engine.SendCommand(name, vehicleID)
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("command %s: %w", id, ctx.Err())
		case ev := <-completed:
			out, ok := events.AsCommandOutcome(ev)
			if !ok || out.ID != id {
				continue
			}
			if !out.OK {
				return fmt.Errorf("%s failed: %s", name, out.Error)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out.Result)
		}
	}
}
