package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(nil, env(nil))
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.DecayInterval)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shellmarket.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_driver: memory
port: 9000
log_level: debug
webhook_workers: 2
cors_origins: ["https://a.example"]
`), 0o600))

	cfg, err := Load([]string{"--config", path, "--port", "9100"}, env(map[string]string{
		"PORT":            "9001",
		"WEBHOOK_TIMEOUT": "2s",
		"REQUIRE_AUTH":    "true",
		"CORS_ORIGINS":    "https://b.example, https://c.example",
	}))
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 9100, cfg.Port, "flag wins over env and file")
	assert.Equal(t, 2, cfg.WebhookWorkers)
	assert.Equal(t, 2*time.Second, cfg.WebhookTimeout)
	assert.True(t, cfg.RequireAuth)
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, cfg.CORSOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"bad port", map[string]string{"PORT": "http"}},
		{"zero workers", map[string]string{"WEBHOOK_WORKERS": "0"}},
		{"bad duration", map[string]string{"DECAY_INTERVAL": "daily"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"otlp endpoint without port", map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "collector"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(nil, env(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestPostgresNeedsDSN(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg.StoreDriver = DriverMemory
	assert.NoError(t, cfg.Validate())
}
