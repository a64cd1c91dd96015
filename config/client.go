package config

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

type API struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

type Realtime struct {
	// URL defaults to the API base with a ws scheme and /ws path.
	URL                  string        `yaml:"url"`
	PingInterval         time.Duration `yaml:"pingInterval"`
	ReconnectInterval    time.Duration `yaml:"reconnectInterval"`
	MaxReconnectAttempts int           `yaml:"maxReconnectAttempts"`
}

type Ledger struct {
	MaxSize int `yaml:"maxSize"`
}

type Device struct {
	Path string `yaml:"path"`
}

type ClientConfig struct {
	API      API      `yaml:"api"`
	Realtime Realtime `yaml:"realtime"`
	Ledger   Ledger   `yaml:"ledger"`
	Device   Device   `yaml:"device"`
	Logging  Logging  `yaml:"logging"`
}

// LoadClient reads CONFIG_PATH, ./config/client.yaml by default.
func LoadClient() (*ClientConfig, error) {
	return LoadClientFrom(pathOr("./config/client.yaml"))
}

func LoadClientFrom(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.baseURL is required")
	}
	base, err := url.Parse(c.API.BaseURL)
	if err != nil || base.Host == "" {
		return errors.New("api.baseURL must be an absolute url")
	}
	if c.Realtime.MaxReconnectAttempts < 0 || c.Ledger.MaxSize < 0 {
		return errors.New("realtime.maxReconnectAttempts and ledger.maxSize must not be negative")
	}

	if c.Realtime.URL == "" {
		ws := *base
		ws.Scheme = "ws"
		if base.Scheme == "https" {
			ws.Scheme = "wss"
		}
		ws.Path = strings.TrimRight(base.Path, "/") + "/ws"
		c.Realtime.URL = ws.String()
	}
	c.API.Timeout = durationOr(c.API.Timeout, 10*time.Second)
	c.Realtime.PingInterval = durationOr(c.Realtime.PingInterval, 30*time.Second)
	c.Realtime.ReconnectInterval = durationOr(c.Realtime.ReconnectInterval, 3*time.Second)
	if c.Realtime.MaxReconnectAttempts == 0 {
		c.Realtime.MaxReconnectAttempts = 5
	}
	if c.Ledger.MaxSize == 0 {
		c.Ledger.MaxSize = 100
	}
	if c.Device.Path == "" {
		c.Device.Path = "./roomsync.db"
	}
	c.Logging.defaults("roomsync")
	return nil
}
