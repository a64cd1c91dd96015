package config

import (
	"os"
	"time"

	"github.com/cwrk-planet/room-sync/pkg/logger"

	"gopkg.in/yaml.v3"
)

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // roombackend
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

// Logger converts the yaml block into logger.Config.
func (l Logging) Logger() logger.Config {
	return logger.Config{
		Env:       logger.Env(l.Env),
		Service:   l.Service,
		Version:   l.Version,
		Backend:   logger.Backend(l.Backend),
		AddSource: l.AddSource,
		Debug:     l.Debug,
	}
}

func (l *Logging) defaults(service string) {
	if l.Service == "" {
		l.Service = service
	}
	if l.Env == "" {
		l.Env = "dev"
	}
	if l.Version == "" {
		l.Version = "v0.1.0"
	}
	if l.Backend == "" {
		l.Backend = "std"
	}
}

func pathOr(def string) string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return def
}

func readYAML(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, dst)
}

// durationOr fills unset (zero or negative) durations.
func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
