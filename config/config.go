// Package config holds the deployment configuration for the market feed:
// the datacenter and its worlds, upstream endpoints, timeouts, and cache
// bounds. Configuration is JSON with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/dan246/ff14-tw-market/errors"
)

// Config is the complete application configuration.
type Config struct {
	DataCenter string         `json:"data_center"`
	Worlds     map[int]string `json:"worlds"`
	Feed       FeedConfig     `json:"feed"`
	Market     MarketConfig   `json:"market"`

	// WatchSeed lists item IDs pre-watched at startup (popular items).
	WatchSeed []int `json:"watch_seed,omitempty"`
}

// FeedConfig configures the streaming connection.
type FeedConfig struct {
	URL                     string `json:"url"`
	ReconnectWaitSeconds    int    `json:"reconnect_wait_seconds"`
	PingIntervalSeconds     int    `json:"ping_interval_seconds"`
	HandshakeTimeoutSeconds int    `json:"handshake_timeout_seconds"`
	RecentEventCapacity     int    `json:"recent_event_capacity"`
}

// MarketConfig configures the read path and its HTTP collaborator.
type MarketConfig struct {
	APIBase             string  `json:"api_base"`
	FetchTimeoutSeconds int     `json:"fetch_timeout_seconds"`
	FetchRatePerSecond  float64 `json:"fetch_rate_per_second"`
	FetchBurst          int     `json:"fetch_burst"`
	CacheCapacity       int     `json:"cache_capacity"`
	MaxEntryAgeMinutes  int     `json:"max_entry_age_minutes"`
}

// Default returns the configuration for the 陸行鳥 (Chocobo) datacenter
// deployment.
func Default() *Config {
	return &Config{
		DataCenter: "陸行鳥",
		Worlds: map[int]string{
			4028: "伊弗利特",
			4029: "迦樓羅",
			4030: "利維坦",
			4031: "鳳凰",
			4032: "奧汀",
			4033: "巴哈姆特",
			4034: "拉姆",
			4035: "泰坦",
		},
		Feed: FeedConfig{
			URL:                     "wss://universalis.app/api/ws",
			ReconnectWaitSeconds:    5,
			PingIntervalSeconds:     30,
			HandshakeTimeoutSeconds: 10,
			RecentEventCapacity:     256,
		},
		Market: MarketConfig{
			APIBase:             "https://universalis.app/api/v2",
			FetchTimeoutSeconds: 15,
			FetchRatePerSecond:  8,
			FetchBurst:          4,
			CacheCapacity:       512,
			MaxEntryAgeMinutes:  30,
		},
		WatchSeed: []int{
			33916, // 暗物質 G8
			5506,  // 黑膠
			5111,  // 鐵礦
			5343,  // 棉花
			5380,  // 原木
			4653,  // 炒蛋
		},
	}
}

// Load reads a JSON configuration file, applies environment overrides, and
// validates the result. An empty path yields the default configuration with
// overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "read file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse JSON")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from FFMARKET_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("FFMARKET_FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("FFMARKET_API_BASE"); v != "" {
		c.Market.APIBase = v
	}
	if v := os.Getenv("FFMARKET_DATA_CENTER"); v != "" {
		c.DataCenter = v
	}
	if v := os.Getenv("FFMARKET_RECONNECT_WAIT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Feed.ReconnectWaitSeconds = n
		}
	}
	if v := os.Getenv("FFMARKET_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Market.CacheCapacity = n
		}
	}
}

// Validate checks the configuration for required fields and sane bounds.
func (c *Config) Validate() error {
	if c.DataCenter == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "data_center")
	}
	if len(c.Worlds) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "worlds")
	}
	if c.Feed.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "feed.url")
	}
	if c.Market.APIBase == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "market.api_base")
	}
	if c.Feed.ReconnectWaitSeconds <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("feed.reconnect_wait_seconds must be positive, got %d", c.Feed.ReconnectWaitSeconds),
			"config", "Validate", "feed.reconnect_wait_seconds")
	}
	if c.Market.CacheCapacity <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("market.cache_capacity must be positive, got %d", c.Market.CacheCapacity),
			"config", "Validate", "market.cache_capacity")
	}
	for id := range c.Worlds {
		if id <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("world id must be positive, got %d", id),
				"config", "Validate", "worlds")
		}
	}
	return nil
}

// WorldIDs returns the configured world IDs in ascending order.
func (c *Config) WorldIDs() []int {
	ids := make([]int, 0, len(c.Worlds))
	for id := range c.Worlds {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// IsWorld reports whether the given world belongs to this deployment.
func (c *Config) IsWorld(id int) bool {
	_, ok := c.Worlds[id]
	return ok
}

// ReconnectWait returns the delay between reconnect attempts.
func (c *FeedConfig) ReconnectWait() time.Duration {
	return time.Duration(c.ReconnectWaitSeconds) * time.Second
}

// PingInterval returns the keep-alive ping interval.
func (c *FeedConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// HandshakeTimeout returns the websocket handshake timeout.
func (c *FeedConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

// FetchTimeout returns the blocking fetch timeout.
func (c *MarketConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// MaxEntryAge returns the age past which cache entries are evictable.
func (c *MarketConfig) MaxEntryAge() time.Duration {
	return time.Duration(c.MaxEntryAgeMinutes) * time.Minute
}
