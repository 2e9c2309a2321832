package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, byte(1), cfg.Mailbox)
	assert.Equal(t, uint16(256), cfg.DynamicIDStart)
	assert.Equal(t, 128, cfg.RXRingSize)
	assert.Equal(t, 128, cfg.TXRingSize)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/chancore.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/chancore.toml"
	contents := []byte("mailbox = 2\ndynamic_id_start = 512\n")
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, byte(2), cfg.Mailbox)
	assert.Equal(t, uint16(512), cfg.DynamicIDStart)
	// Untouched fields keep their defaults.
	assert.Equal(t, 128, cfg.RXRingSize)
}
