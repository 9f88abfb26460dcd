package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan246/ff14-tw-market/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "陸行鳥", cfg.DataCenter)
	assert.Len(t, cfg.Worlds, 8)
	assert.True(t, cfg.IsWorld(4028))
	assert.False(t, cfg.IsWorld(99))
	assert.Equal(t, "wss://universalis.app/api/ws", cfg.Feed.URL)
}

func TestWorldIDsSorted(t *testing.T) {
	cfg := Default()
	ids := cfg.WorldIDs()
	require.Len(t, ids, 8)
	assert.Equal(t, 4028, ids[0])
	assert.Equal(t, 4035, ids[len(ids)-1])
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"data_center": "Elemental",
		"worlds": {"45": "Carbuncle"},
		"feed": {"url": "wss://example.test/ws", "reconnect_wait_seconds": 2},
		"market": {"api_base": "https://example.test/api", "cache_capacity": 16}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Elemental", cfg.DataCenter)
	assert.Equal(t, "wss://example.test/ws", cfg.Feed.URL)
	assert.Equal(t, []int{45}, cfg.WorldIDs())
	assert.Equal(t, 16, cfg.Market.CacheCapacity)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FFMARKET_FEED_URL", "wss://override.test/ws")
	t.Setenv("FFMARKET_CACHE_CAPACITY", "99")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "wss://override.test/ws", cfg.Feed.URL)
	assert.Equal(t, 99, cfg.Market.CacheCapacity)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfg := Default()
	cfg.Feed.URL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	cfg = Default()
	cfg.Worlds = nil
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Market.CacheCapacity = 0
	assert.Error(t, cfg.Validate())
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "5s", cfg.Feed.ReconnectWait().String())
	assert.Equal(t, "30s", cfg.Feed.PingInterval().String())
	assert.Equal(t, "15s", cfg.Market.FetchTimeout().String())
	assert.Equal(t, "30m0s", cfg.Market.MaxEntryAge().String())
}
