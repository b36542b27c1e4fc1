package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"

	"ant-bootstrap/internal/keys"
	"ant-bootstrap/internal/logger"
	"ant-bootstrap/internal/types"
)

// PeersEnvVar holds comma separated explicit peers appended to the file's list
const PeersEnvVar = "ANT_PEERS"

// MinSyncInterval is the shortest accepted periodic flush interval
const MinSyncInterval = time.Second

// Manager handles configuration loading, validation, and management
type Manager struct {
	keyManager *keys.KeyManager
	getenv     func(string) string
}

// NewManager creates a new configuration manager with dependencies
func NewManager(keyManager *keys.KeyManager) *Manager {
	return &Manager{
		keyManager: keyManager,
		getenv:     os.Getenv,
	}
}

// LoadConfig loads configuration from the specified file path. A missing file
// is created with defaults and an empty private key is generated and saved.
func (m *Manager) LoadConfig(filePath string) (*types.Config, error) {
	log := logger.Component("config")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := m.CreateConfigFile(filePath, types.DefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		log.Info("Created default configuration file", "path", filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if cfg.Node.PrivateKey == "" {
		privateKey, err := m.keyManager.GeneratePrivateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate private key: %w", err)
		}
		cfg.Node.PrivateKey = privateKey

		if err := m.SaveConfig(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to save config with generated private key: %w", err)
		}
		log.Info("Generated and saved new node private key", "path", filePath)
	}

	cfg.Bootstrap = cfg.Bootstrap.WithDefaults()
	cfg.Network = cfg.Network.WithDefaults()
	cfg.Bootstrap.ExplicitPeers = append(cfg.Bootstrap.ExplicitPeers, m.envPeers()...)

	if err := m.ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envPeers splits PeersEnvVar into trimmed non-empty entries
func (m *Manager) envPeers() []string {
	value := m.getenv(PeersEnvVar)
	if value == "" {
		return nil
	}

	var peers []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}

// CreateConfigFile creates a new configuration file with the given config
func (m *Manager) CreateConfigFile(filePath string, cfg *types.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig saves the configuration to the specified file
func (m *Manager) SaveConfig(filePath string, cfg *types.Config) error {
	return m.CreateConfigFile(filePath, cfg)
}

// ValidateConfig validates the configuration structure and values. Peer
// address lists are not checked here: invalid entries are skipped with a
// warning when peers are acquired.
func (m *Manager) ValidateConfig(cfg *types.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := m.validateNodeConfig(&cfg.Node); err != nil {
		return fmt.Errorf("node config validation failed: %w", err)
	}

	if err := validateBootstrapConfig(&cfg.Bootstrap); err != nil {
		return fmt.Errorf("bootstrap config validation failed: %w", err)
	}

	if err := validateNetworkConfig(&cfg.Network); err != nil {
		return fmt.Errorf("network config validation failed: %w", err)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}

	return nil
}

func (m *Manager) validateNodeConfig(cfg *types.NodeConfig) error {
	return m.keyManager.ValidatePrivateKey(cfg.PrivateKey)
}

func validateBootstrapConfig(cfg *types.CacheConfig) error {
	if cfg.CachePath == "" {
		return fmt.Errorf("bootstrap.cache_path cannot be empty")
	}
	if cfg.MaxEntries < 1 {
		return fmt.Errorf("bootstrap.max_entries must be positive, got %d", cfg.MaxEntries)
	}
	if cfg.SyncInterval < MinSyncInterval {
		return fmt.Errorf("bootstrap.sync_interval must be at least %s", MinSyncInterval)
	}
	if cfg.FetchRetries < 1 {
		return fmt.Errorf("bootstrap.fetch_retries must be at least 1")
	}
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("bootstrap.fetch_timeout must be positive")
	}
	if cfg.RetryDelay < 0 {
		return fmt.Errorf("bootstrap.retry_delay cannot be negative")
	}

	for i, endpoint := range cfg.ContactsEndpoints {
		if err := validateEndpoint(endpoint); err != nil {
			return fmt.Errorf("invalid contacts endpoint at index %d: %w", i, err)
		}
	}

	return nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q must use http or https", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return nil
}

func validateNetworkConfig(cfg *types.NetworkConfig) error {
	if len(cfg.ListenAddresses) == 0 {
		return fmt.Errorf("network.listen_addresses cannot be empty")
	}

	for i, addr := range cfg.ListenAddresses {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("invalid listen address at index %d: %w", i, err)
		}
	}

	if cfg.DialTimeout <= 0 {
		return fmt.Errorf("network.dial_timeout must be positive")
	}
	if cfg.MaxConcurrentDials < 1 {
		return fmt.Errorf("network.max_concurrent_dials must be at least 1")
	}

	return nil
}

func validateLoggingConfig(cfg *logger.Config) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	return nil
}
