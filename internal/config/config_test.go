package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeEnv(t, `
CREDITS_ADDR=:9090
CREDITS_STORE=redis
CREDITS_CATALOG=single
CREDITS_LOGIN_LIMIT=3
CREDITS_ALLOWED_DOMAINS=studio.io, example.com
CREDITS_LOG_LEVEL=debug
CREDITS_SHUTDOWN_TIMEOUT=3s
`)
	t.Setenv("CREDITS_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr, "the process environment wins")
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, CatalogSingle, cfg.Catalog)
	assert.Equal(t, 3, cfg.LoginLimit)
	assert.Equal(t, []string{"studio.io", "example.com"}, cfg.AllowedDomains)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad limit", "CREDITS_LOGIN_LIMIT=many"},
		{"negative limit", "CREDITS_LOGIN_LIMIT=-1"},
		{"unknown store", "CREDITS_STORE=etcd"},
		{"postgres without dsn", "CREDITS_STORE=postgres"},
		{"unknown catalog", "CREDITS_CATALOG=triple"},
		{"bad level", "CREDITS_LOG_LEVEL=loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeEnv(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestSQLiteDefaultsDSN(t *testing.T) {
	cfg, err := Load(writeEnv(t, "CREDITS_STORE=sqlite"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.DSN)
}

func TestLoadGateways(t *testing.T) {
	path := writeEnv(t, `
CREDITS_IMAGEN_URL=https://gw.studio.io/imagen
CREDITS_IMAGEN_TOKEN=file-token
CREDITS_REPLICATE_URL=http://localhost:9000/replicate
`)
	t.Setenv("CREDITS_IMAGEN_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Gateway{
		{Provider: "imagen", URL: "https://gw.studio.io/imagen", Token: "env-token"},
		{Provider: "replicate", URL: "http://localhost:9000/replicate"},
	}, cfg.Gateways)

	_, err = Load(writeEnv(t, "CREDITS_REPLICATE_URL=gw.studio.io/replicate"))
	assert.Error(t, err, "a gateway needs a scheme")
}
