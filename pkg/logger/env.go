package logger

import (
	"os"
	"strings"
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

// DetectEnv reads ROOMSYNC_ENV, falling back to APP_ENV.
func DetectEnv() Env {
	raw := os.Getenv("ROOMSYNC_ENV")
	if raw == "" {
		raw = os.Getenv("APP_ENV")
	}

	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return EnvProd
	case "stage", "staging", "preprod", "pre-production":
		return EnvStage
	default:
		return EnvDev
	}
}
