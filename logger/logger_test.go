package logger

import (
	"os"
	"path/filepath"
	"testing"

	"pricefeed/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestNewWritesRotatedFile
func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "feed.log")

	log, err := New(config.LogConfig{
		Level:       "debug",
		Format:      "json",
		OutputFile:  path,
		Environment: "prod",
	})
	require.NoError(t, err)

	log.Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"env":"prod"`)
}

// go test -v --run TestNewRejectsBadLevel
func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	require.Error(t, err)
}
