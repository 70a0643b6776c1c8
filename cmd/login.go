package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/etr/core/events"
)

var (
	loginUser     string
	loginPassword string
	loginToken    string
	loginTimeout  time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange credentials for a token or verify an existing token",
	RunE:  runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginUser, "user", "", "account user name")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "existing access token to verify")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 10*time.Second, "time to wait for the result")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)

	results, unsub, err := svc.Engine.Bus().Subscribe(4, events.CredentialsResult)
	if err != nil {
		return err
	}
	defer unsub()

	id, err := svc.Engine.LoadCredentials(loginUser, loginPassword, loginToken)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("login %s: %w", id, ctx.Err())
		case ev := <-results:
			out, ok := events.AsCredentialsOutcome(ev)
			if !ok || out.ID != id {
				continue
			}
			if !out.OK {
				return fmt.Errorf("login failed: %s", out.Error)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out.Payload)
		}
	}
}
