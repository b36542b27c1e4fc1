// Command ant-bootstrap acquires bootstrap peers for a node and keeps the
// on-disk bootstrap cache fresh until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"ant-bootstrap/internal/bootstrap"
	"ant-bootstrap/internal/config"
	"ant-bootstrap/internal/contacts"
	"ant-bootstrap/internal/keys"
	"ant-bootstrap/internal/logger"
	"ant-bootstrap/internal/network"
	"ant-bootstrap/internal/storage"
	"ant-bootstrap/internal/types"
)

type options struct {
	Config              string   `short:"c" long:"config" default:"config.yaml" description:"path to the YAML configuration file"`
	Peers               []string `short:"p" long:"peer" description:"explicit bootstrap peer multiaddr; may be specified multiple times"`
	DisableCacheWriting bool     `long:"disable-cache-writing" description:"never write the bootstrap cache file"`
	Print               bool     `long:"print" description:"print the acquired peers and exit"`
	Dial                bool     `long:"dial" description:"dial the acquired peers and cache the reachable ones"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "ant-bootstrap: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	keyManager := keys.NewKeyManager()
	cfg, err := config.NewManager(keyManager).LoadConfig(opts.Config)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.Component("main")

	if opts.DisableCacheWriting {
		cfg.Bootstrap.DisableCacheWriting = true
	}

	localID, err := keyManager.PeerID(cfg.Node.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to derive local peer ID: %w", err)
	}
	log.Info("Starting bootstrap", "peer_id", localID.String(), "cache_path", cfg.Bootstrap.CachePath)

	store, err := storage.Open(cfg.Bootstrap)
	if err != nil {
		var decodeErr *storage.DecodeError
		if errors.As(err, &decodeErr) && decodeErr.BackupPath != "" {
			return fmt.Errorf("%w (a copy was saved to %s)", err, decodeErr.BackupPath)
		}
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to flush bootstrap cache on shutdown", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := bootstrap.NewPipeline(cfg.Bootstrap, store, contacts.NewFetcher(cfg.Bootstrap),
		bootstrap.WithLocalPeerID(localID))
	defer pipeline.Close()

	addrs, err := pipeline.Acquire(ctx, opts.Peers)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		fmt.Println(addr.String())
	}

	if opts.Dial {
		if err := dial(ctx, cfg, keyManager, store, addrs); err != nil {
			return err
		}
	}

	if opts.Print {
		return nil
	}

	flush := store.SyncAndFlushPeriodically(ctx, cfg.Bootstrap.SyncInterval)
	log.Info("Bootstrap cache sync running", "interval", cfg.Bootstrap.SyncInterval.String())

	<-ctx.Done()
	flush.Stop()
	log.Info("Shutting down", "flush_cycles", flush.Cycles(), "last_flush_error", flush.Err())
	return nil
}

// dial connects to addrs from a host using the node identity. Successful
// outbound connections refresh their cache entries.
func dial(ctx context.Context, cfg *types.Config, keyManager *keys.KeyManager, store *storage.CacheStore, addrs []types.PeerAddress) error {
	privKey, err := keyManager.PrivKey(cfg.Node.PrivateKey)
	if err != nil {
		return err
	}

	host, err := network.NewHostWrapper(cfg.Network, privKey)
	if err != nil {
		return err
	}
	defer host.Close()
	logger.Info("Dialing bootstrap peers", "host_id", host.ID().String(), "count", len(addrs))

	dialer := network.NewDialer(host.Host(), cfg.Network)
	dialer.Observe(network.NewCacheObserver(store))

	for _, result := range dialer.DialAll(ctx, addrs) {
		if result.Err != nil {
			logger.Warn("Bootstrap peer unreachable", "address", result.Address.String(), "error", result.Err)
		}
	}
	return nil
}
