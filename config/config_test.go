package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadBackend_Defaults(t *testing.T) {
	cfg, err := LoadBackendFrom(writeFile(t, "http:\n  addr: \":9000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, float64(20), cfg.RateLimit.RPS)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, "roombackend", cfg.Logging.Service)
	assert.Equal(t, "std", cfg.Logging.Backend)
}

func TestLoadBackend_RequiresAddr(t *testing.T) {
	_, err := LoadBackendFrom(writeFile(t, "postgres:\n  dsn: x\n"))
	assert.EqualError(t, err, "http.addr is required")
}

func TestLoadBackend_SampleFile(t *testing.T) {
	cfg, err := LoadBackendFrom("backend.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 40, cfg.RateLimit.Burst)
}

func TestLoadClient_DerivesRealtimeURL(t *testing.T) {
	cfg, err := LoadClientFrom(writeFile(t, "api:\n  baseURL: https://score.example.com/v\n"))
	require.NoError(t, err)

	assert.Equal(t, "wss://score.example.com/v/ws", cfg.Realtime.URL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Realtime.ReconnectInterval)
	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, 100, cfg.Ledger.MaxSize)
	assert.Equal(t, "roomsync", cfg.Logging.Service)
}

func TestLoadClient_Invalid(t *testing.T) {
	_, err := LoadClientFrom(writeFile(t, "ledger:\n  maxSize: 5\n"))
	assert.EqualError(t, err, "api.baseURL is required")

	_, err = LoadClientFrom(writeFile(t, "api:\n  baseURL: localhost\n"))
	assert.Error(t, err)
}

func TestLoadClient_EnvPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeFile(t, "api:\n  baseURL: http://127.0.0.1:8080\n"))

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/ws", cfg.Realtime.URL)
}
