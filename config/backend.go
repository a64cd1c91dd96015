package config

import (
	"errors"
	"time"
)

type HTTP struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	// RequestTimeout bounds REST handlers; the push channel is not affected.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type Postgres struct {
	DSN string `yaml:"dsn"` // empty: in-memory store
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Push struct {
	PingInterval time.Duration `yaml:"pingInterval"`
}

type BackendConfig struct {
	HTTP      HTTP      `yaml:"http"`
	Postgres  Postgres  `yaml:"postgres"`
	RateLimit RateLimit `yaml:"rateLimit"`
	CORS      CORS      `yaml:"cors"`
	Realtime  Push      `yaml:"realtime"`
	Logging   Logging   `yaml:"logging"`
}

// LoadBackend reads CONFIG_PATH, ./config/backend.yaml by default.
func LoadBackend() (*BackendConfig, error) {
	return LoadBackendFrom(pathOr("./config/backend.yaml"))
}

func LoadBackendFrom(path string) (*BackendConfig, error) {
	var cfg BackendConfig
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *BackendConfig) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rateLimit must not be negative")
	}

	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.WriteTimeout = durationOr(c.HTTP.WriteTimeout, 15*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	c.HTTP.RequestTimeout = durationOr(c.HTTP.RequestTimeout, 30*time.Second)
	c.Realtime.PingInterval = durationOr(c.Realtime.PingInterval, 30*time.Second)
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	c.Logging.defaults("roombackend")
	return nil
}
