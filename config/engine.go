package config

import (
	"fmt"
	"time"
)

// EngineConfig tunes the polling loop and the worker pool.
type EngineConfig struct {
	PollRateSeconds   float64 `json:"poll_rate_seconds"`
	Workers           int     `json:"workers"`
	DetailParallelism int     `json:"detail_parallelism"`
	// StrictEvents propagates handler failures to the raiser.
	StrictEvents bool `json:"strict_events"`
}

// SetDefaults applies sane defaults.
func (c *EngineConfig) SetDefaults() {
	if c.PollRateSeconds == 0 {
		c.PollRateSeconds = 3
	}
	if c.Workers == 0 {
		c.Workers = 8
	}
	if c.DetailParallelism == 0 {
		c.DetailParallelism = 4
	}
}

// Validate checks numeric ranges.
func (c EngineConfig) Validate() error {
	if c.PollRateSeconds <= 0 {
		return fmt.Errorf("poll_rate_seconds must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.DetailParallelism < 1 {
		return fmt.Errorf("detail_parallelism must be at least 1")
	}
	return nil
}

// PollRate returns the poll period.
func (c EngineConfig) PollRate() time.Duration {
	return time.Duration(c.PollRateSeconds * float64(time.Second))
}

const (
	BackendDemo = "demo"
	BackendMQTT = "mqtt"
)

// BackendConfig selects the vehicle API backend.
type BackendConfig struct {
	// Mode is "demo" or "mqtt".
	Mode string `json:"mode"`
	// Token is the initial credential installed on the backend.
	Token string `json:"token"`
}

// SetDefaults applies sane defaults.
func (c *BackendConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = BackendDemo
	}
}

// Validate checks mandatory fields.
func (c BackendConfig) Validate() error {
	if c.Mode != BackendDemo && c.Mode != BackendMQTT {
		return fmt.Errorf("unknown mode %s", c.Mode)
	}
	return nil
}

// APIConfig configures the HTTP status API. An empty Addr disables it.
type APIConfig struct {
	Addr string `json:"addr"`
}

const (
	StatusMemory = "memory"
	StatusRedis  = "redis"
)

// StatusConfig selects where the latest vehicle statuses are kept.
type StatusConfig struct {
	// Store is "memory" or "redis".
	Store         string `json:"store"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	// TTLSeconds expires redis entries of vehicles no longer reported; zero
	// keeps them.
	TTLSeconds int `json:"ttl_seconds"`
}

// SetDefaults applies sane defaults.
func (c *StatusConfig) SetDefaults() {
	if c.Store == "" {
		c.Store = StatusMemory
	}
}

// Validate checks mandatory fields.
func (c StatusConfig) Validate() error {
	switch c.Store {
	case StatusMemory:
		return nil
	case StatusRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required")
		}
		if c.TTLSeconds < 0 {
			return fmt.Errorf("ttl_seconds must not be negative")
		}
		return nil
	}
	return fmt.Errorf("unknown store %s", c.Store)
}

// TTL returns the redis entry lifetime.
func (c StatusConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
