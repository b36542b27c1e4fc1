package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ant-bootstrap/internal/keys"
	"ant-bootstrap/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	configPath := filepath.Join(t.TempDir(), "test_config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return configPath
}

func TestManager_LoadConfig(t *testing.T) {
	keyManager := keys.NewKeyManager()
	manager := NewManager(keyManager)

	t.Run("creates default config when file doesn't exist", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nested", "test_config.yaml")

		cfg, err := manager.LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			t.Fatal("Expected config file to be created")
		}

		if cfg.Node.PrivateKey == "" {
			t.Fatal("Expected private key to be generated")
		}
		if cfg.Bootstrap.MaxEntries != types.DefaultMaxEntries {
			t.Errorf("Expected default max_entries %d, got %d", types.DefaultMaxEntries, cfg.Bootstrap.MaxEntries)
		}
		if cfg.Bootstrap.SyncInterval != types.DefaultSyncInterval {
			t.Errorf("Expected default sync_interval, got %s", cfg.Bootstrap.SyncInterval)
		}

		// the generated key is persisted
		again, err := manager.LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected reload to succeed, got %v", err)
		}
		if again.Node.PrivateKey != cfg.Node.PrivateKey {
			t.Error("Expected generated private key to be saved")
		}
	})

	t.Run("loads existing valid config", func(t *testing.T) {
		testKey, err := keyManager.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("Failed to generate test key: %v", err)
		}

		configPath := writeConfig(t, fmt.Sprintf(`
node:
  private_key: "%s"

bootstrap:
  cache_path: "/var/lib/ant/bootstrap_cache.yaml"
  max_entries: 50
  sync_interval: "30s"
  disable_cache_writing: true
  contacts_endpoints:
    - "https://contacts.example.com/peers"
  fetch_retries: 5
  fetch_timeout: "2s"
  merge_sources: true

network:
  listen_addresses:
    - "/ip4/0.0.0.0/tcp/9000"

logging:
  level: "debug"
`, testKey))

		cfg, err := manager.LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		b := cfg.Bootstrap
		if b.CachePath != "/var/lib/ant/bootstrap_cache.yaml" || b.MaxEntries != 50 {
			t.Errorf("Unexpected cache settings: %+v", b)
		}
		if b.SyncInterval != 30*time.Second || b.FetchTimeout != 2*time.Second {
			t.Errorf("Unexpected durations: sync=%s fetch=%s", b.SyncInterval, b.FetchTimeout)
		}
		if !b.DisableCacheWriting || !b.MergeSources {
			t.Error("Expected boolean flags to be loaded")
		}
		if b.FetchRetries != 5 || len(b.ContactsEndpoints) != 1 {
			t.Errorf("Unexpected contacts settings: %+v", b)
		}
		if b.RetryDelay != types.DefaultRetryDelay {
			t.Errorf("Expected default retry_delay, got %s", b.RetryDelay)
		}
		if cfg.Network.DialTimeout != types.DefaultDialTimeout {
			t.Errorf("Expected default dial_timeout, got %s", cfg.Network.DialTimeout)
		}
	})

	t.Run("appends peers from environment", func(t *testing.T) {
		t.Setenv(PeersEnvVar, " /ip4/10.0.0.1/tcp/1/p2p/a , ,/ip4/10.0.0.2/tcp/2/p2p/b")

		configPath := writeConfig(t, `
bootstrap:
  explicit_peers:
    - "/ip4/10.0.0.9/tcp/9/p2p/z"
`)

		cfg, err := manager.LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		want := []string{"/ip4/10.0.0.9/tcp/9/p2p/z", "/ip4/10.0.0.1/tcp/1/p2p/a", "/ip4/10.0.0.2/tcp/2/p2p/b"}
		if strings.Join(cfg.Bootstrap.ExplicitPeers, ",") != strings.Join(want, ",") {
			t.Errorf("Expected explicit peers %v, got %v", want, cfg.Bootstrap.ExplicitPeers)
		}
	})

	t.Run("fails on invalid YAML", func(t *testing.T) {
		configPath := writeConfig(t, `
node:
  private_key: "test"
invalid_yaml: [
`)

		if _, err := manager.LoadConfig(configPath); err == nil {
			t.Fatal("Expected error for invalid YAML")
		}
	})

	t.Run("fails on invalid values", func(t *testing.T) {
		configPath := writeConfig(t, `
bootstrap:
  max_entries: -5
`)

		_, err := manager.LoadConfig(configPath)
		if err == nil || !strings.Contains(err.Error(), "max_entries") {
			t.Fatalf("Expected max_entries validation error, got %v", err)
		}
	})
}

func TestManager_ValidateConfig(t *testing.T) {
	keyManager := keys.NewKeyManager()
	manager := NewManager(keyManager)

	testKey, err := keyManager.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("Failed to generate test key: %v", err)
	}

	valid := func() *types.Config {
		cfg := types.DefaultConfig()
		cfg.Node.PrivateKey = testKey
		cfg.Bootstrap.ContactsEndpoints = []string{"https://contacts.example.com", "http://10.0.0.1:8080/list"}
		return cfg
	}

	if err := manager.ValidateConfig(valid()); err != nil {
		t.Fatalf("Expected valid config to pass validation, got %v", err)
	}

	if err := manager.ValidateConfig(nil); err == nil {
		t.Fatal("Expected error for nil config")
	}

	tests := []struct {
		name   string
		mutate func(cfg *types.Config)
	}{
		{"bad private key", func(cfg *types.Config) { cfg.Node.PrivateKey = "not-base64!" }},
		{"empty cache path", func(cfg *types.Config) { cfg.Bootstrap.CachePath = "" }},
		{"zero max entries", func(cfg *types.Config) { cfg.Bootstrap.MaxEntries = 0 }},
		{"sync interval too short", func(cfg *types.Config) { cfg.Bootstrap.SyncInterval = 500 * time.Millisecond }},
		{"zero fetch retries", func(cfg *types.Config) { cfg.Bootstrap.FetchRetries = 0 }},
		{"zero fetch timeout", func(cfg *types.Config) { cfg.Bootstrap.FetchTimeout = 0 }},
		{"negative retry delay", func(cfg *types.Config) { cfg.Bootstrap.RetryDelay = -time.Second }},
		{"ftp endpoint", func(cfg *types.Config) { cfg.Bootstrap.ContactsEndpoints = []string{"ftp://contacts"} }},
		{"endpoint without host", func(cfg *types.Config) { cfg.Bootstrap.ContactsEndpoints = []string{"https://"} }},
		{"empty listen addresses", func(cfg *types.Config) { cfg.Network.ListenAddresses = nil }},
		{"bad listen address", func(cfg *types.Config) { cfg.Network.ListenAddresses = []string{"ip4/1.2.3.4"} }},
		{"zero dial timeout", func(cfg *types.Config) { cfg.Network.DialTimeout = 0 }},
		{"zero concurrent dials", func(cfg *types.Config) { cfg.Network.MaxConcurrentDials = 0 }},
		{"invalid log level", func(cfg *types.Config) { cfg.Logging.Level = "invalid" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := manager.ValidateConfig(cfg); err == nil {
				t.Fatal("Expected validation error")
			}
		})
	}
}
