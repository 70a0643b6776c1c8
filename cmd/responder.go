package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/etr/config"
	"github.com/kilianp07/etr/infra/demo"
	"github.com/kilianp07/etr/infra/logger"
	"github.com/kilianp07/etr/infra/mqtt"
)

var responderCmd = &cobra.Command{
	Use:   "responder",
	Short: "Serve the demo fleet over the MQTT request/response topics",
	RunE:  runResponder,
}

func init() {
	rootCmd.AddCommand(responderCmd)
}

func runResponder(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	mc := cfg.MQTT
	mc.SetDefaults()
	if err := mc.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if mc.ClientID != "" {
		mc.ClientID += "-responder"
	}
	log := logger.New("responder")
	if _, err := mqtt.NewResponder(ctx, mc, demo.New(demo.WithLogger(log))); err != nil {
		return err
	}
	log.Infof("serving demo fleet on %s", mc.RequestTopic)
	<-ctx.Done()
	return nil
}
