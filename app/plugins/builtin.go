package plugins

import (
	"github.com/kilianp07/etr/config"
	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/infra/demo"
	"github.com/kilianp07/etr/infra/logger"
	"github.com/kilianp07/etr/infra/mqtt"
)

func init() {
	RegisterBackend(config.BackendDemo, func(cfg *config.Config) (backend.Backend, error) {
		opts := []demo.Option{demo.WithLogger(logger.New("demo_backend"))}
		if cfg.Backend.Token != "" {
			opts = append(opts, demo.WithToken(cfg.Backend.Token))
		}
		return demo.New(opts...), nil
	})
	RegisterBackend(config.BackendMQTT, func(cfg *config.Config) (backend.Backend, error) {
		mc := cfg.MQTT
		mc.SetDefaults()
		if err := mc.Validate(); err != nil {
			return nil, err
		}
		return mqtt.NewBackend(mc, cfg.Backend.Token)
	})
}
