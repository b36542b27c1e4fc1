package types

import (
	"time"

	"ant-bootstrap/internal/logger"
)

// Defaults applied when a configuration value is left unset
const (
	DefaultCacheFile    = "bootstrap_cache.yaml"
	DefaultMaxEntries   = 1500
	DefaultSyncInterval = 5 * time.Minute
	DefaultFetchRetries = 3
	DefaultFetchTimeout = 10 * time.Second
	DefaultRetryDelay   = time.Second

	DefaultDialTimeout        = 10 * time.Second
	DefaultMaxConcurrentDials = 8
)

// DefaultListenAddress lets the dial host pick any free TCP port
const DefaultListenAddress = "/ip4/0.0.0.0/tcp/0"

// Config represents the complete application configuration
type Config struct {
	Node      NodeConfig    `yaml:"node"`
	Bootstrap CacheConfig   `yaml:"bootstrap"`
	Network   NetworkConfig `yaml:"network"`
	Logging   logger.Config `yaml:"logging"`
}

// NodeConfig contains node-specific configuration
type NodeConfig struct {
	// PrivateKey identifies the local node so it never bootstraps off itself.
	PrivateKey string `yaml:"private_key"`
}

// NetworkConfig configures the optional host used to dial acquired peers
type NetworkConfig struct {
	ListenAddresses    []string      `yaml:"listen_addresses"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	MaxConcurrentDials int           `yaml:"max_concurrent_dials"`
}

// WithDefaults returns a copy of c with every unset value defaulted
func (c NetworkConfig) WithDefaults() NetworkConfig {
	if len(c.ListenAddresses) == 0 {
		c.ListenAddresses = []string{DefaultListenAddress}
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.MaxConcurrentDials == 0 {
		c.MaxConcurrentDials = DefaultMaxConcurrentDials
	}
	return c
}

// CacheConfig is the immutable configuration of the bootstrap cache and the
// peer acquisition pipeline. It is passed by value and never mutated after
// loading.
type CacheConfig struct {
	CachePath           string        `yaml:"cache_path"`
	MaxEntries          int           `yaml:"max_entries"`
	SyncInterval        time.Duration `yaml:"sync_interval"`
	DisableCacheWriting bool          `yaml:"disable_cache_writing"`

	ContactsEndpoints []string      `yaml:"contacts_endpoints"`
	FetchRetries      int           `yaml:"fetch_retries"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	RetryDelay        time.Duration `yaml:"retry_delay"`

	ExplicitPeers []string `yaml:"explicit_peers"`
	DefaultPeers  []string `yaml:"default_peers"`

	// MergeSources gathers every source instead of stopping at the first
	// non-empty one.
	MergeSources bool `yaml:"merge_sources"`
	// BackgroundRefresh refreshes the cache from contacts after a cache hit.
	BackgroundRefresh bool `yaml:"background_refresh"`
}

// WithDefaults returns a copy of c with every unset value defaulted
func (c CacheConfig) WithDefaults() CacheConfig {
	if c.CachePath == "" {
		c.CachePath = DefaultCacheFile
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.FetchRetries == 0 {
		c.FetchRetries = DefaultFetchRetries
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			PrivateKey: "", // Will be generated if empty
		},
		Bootstrap: CacheConfig{}.WithDefaults(),
		Network:   NetworkConfig{}.WithDefaults(),
		Logging: logger.Config{
			ConsoleOutput: true,
			Level:         "info",
		},
	}
}
