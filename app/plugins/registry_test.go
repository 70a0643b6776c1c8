package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/etr/config"
	"github.com/kilianp07/etr/infra/demo"
)

func TestBackendModes(t *testing.T) {
	assert.Equal(t, []string{"demo", "mqtt"}, BackendModes())
}

func TestNewDemoBackend(t *testing.T) {
	b, err := NewBackend(&config.Config{}, config.BackendDemo)
	require.NoError(t, err)
	assert.Equal(t, demo.DefaultToken, b.Token())

	cfg := &config.Config{Backend: config.BackendConfig{Token: "custom"}}
	b, err = NewBackend(cfg, config.BackendDemo)
	require.NoError(t, err)
	assert.Equal(t, "custom", b.Token())
}

func TestNewBackendErrors(t *testing.T) {
	_, err := NewBackend(&config.Config{}, "cloud")
	assert.Error(t, err)
	// no broker configured
	_, err = NewBackend(&config.Config{}, config.BackendMQTT)
	assert.Error(t, err)
}
