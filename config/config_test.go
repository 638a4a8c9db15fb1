package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

// go test -v --run TestLoadFromAppliesDefaults
func TestLoadFromAppliesDefaults(t *testing.T) {
	dir := writeConfig(t, `
feed:
  symbols: [BTCUSDT, ethusdt]
log:
  level: debug
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ethusdt"}, cfg.Feed.Symbols)
	assert.Equal(t, []string{"ticker"}, cfg.Feed.Streams)
	assert.Equal(t, 100*time.Millisecond, cfg.Feed.Debounce)
	assert.Equal(t, 300*time.Millisecond, cfg.Feed.MinSendSpacing)
	assert.Equal(t, 2*time.Second, cfg.Feed.ReconnectBase)
	assert.Equal(t, 30*time.Second, cfg.Feed.ReconnectMax)
	assert.Equal(t, 10, cfg.Feed.MaxReconnectAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Feed.ForceReconnectDelay)
	assert.Equal(t, "reconnect", cfg.Feed.UnsubscribeMode)
	assert.Equal(t, "wss://stream.binance.com:9443/stream", cfg.Binance.WS.URL)
	assert.Equal(t, 64*1024, cfg.Binance.WS.MaxFrameBytes)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Postgres.Enabled)
}

// go test -v --run TestLoadFromEnvOverride
func TestLoadFromEnvOverride(t *testing.T) {
	dir := writeConfig(t, `
binance:
  ws:
    url: wss://example.invalid/stream
`)
	t.Setenv("BINANCE_WS_URL", "ws://127.0.0.1:9999/stream")
	t.Setenv("FEED_MIN_SEND_SPACING", "1s")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "ws://127.0.0.1:9999/stream", cfg.Binance.WS.URL)
	assert.Equal(t, time.Second, cfg.Feed.MinSendSpacing)
}

// go test -v --run TestLoadFromMissingFile
func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
}

// go test -v --run TestPostgresDSN
func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		DBName:   "pricefeed",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=pricefeed sslmode=disable TimeZone=UTC",
		cfg.DSN("dev"))
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=postgres sslmode=disable TimeZone=UTC",
		cfg.AdminDSN())
}
