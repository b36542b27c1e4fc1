package network

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	rcmgr "github.com/libp2p/go-libp2p/p2p/host/resource-manager"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"

	"ant-bootstrap/internal/logger"
	"ant-bootstrap/internal/types"
)

// Connection manager watermarks. A bootstrapping node keeps a modest number
// of connections until the routing layer takes over.
const (
	connLowWater  = 64
	connHighWater = 128
)

// HostWrapper wraps the libp2p host used to dial acquired peers
type HostWrapper struct {
	host   host.Host
	config types.NetworkConfig
	log    *logger.Logger
}

// NewHostWrapper creates a TCP-only host. privateKey may be nil, in which
// case libp2p generates an ephemeral identity.
func NewHostWrapper(config types.NetworkConfig, privateKey crypto.PrivKey) (*HostWrapper, error) {
	config = config.WithDefaults()
	log := logger.Component("network.host")

	var opts []libp2p.Option
	if privateKey != nil {
		opts = append(opts, libp2p.Identity(privateKey))
	}

	opts = append(opts,
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.DefaultSecurity,
		libp2p.DefaultMuxers,
	)

	connManager, err := connmgr.NewConnManager(
		connLowWater,
		connHighWater,
		connmgr.WithGracePeriod(10*time.Second),
		connmgr.WithSilencePeriod(5*time.Second),
	)
	if err != nil {
		return nil, NewNetworkError("connection manager", err, nil)
	}
	opts = append(opts, libp2p.ConnectionManager(connManager))

	// One connection per peer is enough to confirm reachability
	limits := rcmgr.PartialLimitConfig{
		System: rcmgr.ResourceLimits{
			Conns:         rcmgr.LimitVal(connHighWater * 2),
			ConnsInbound:  rcmgr.LimitVal(connHighWater),
			ConnsOutbound: rcmgr.LimitVal(connHighWater * 2),
		},
		PeerDefault: rcmgr.ResourceLimits{
			Conns:         rcmgr.LimitVal(1),
			ConnsInbound:  rcmgr.LimitVal(1),
			ConnsOutbound: rcmgr.LimitVal(1),
		},
	}
	limiter := rcmgr.NewFixedLimiter(limits.Build(rcmgr.DefaultLimits.AutoScale()))
	resourceManager, err := rcmgr.NewResourceManager(limiter)
	if err != nil {
		return nil, NewNetworkError("resource manager", err, nil)
	}
	opts = append(opts, libp2p.ResourceManager(resourceManager))

	listenAddrs := make([]multiaddr.Multiaddr, 0, len(config.ListenAddresses))
	for _, addrStr := range config.ListenAddresses {
		addr, err := multiaddr.NewMultiaddr(addrStr)
		if err != nil {
			return nil, fmt.Errorf("%w: listen address %q: %v", ErrInvalidConfig, addrStr, err)
		}
		listenAddrs = append(listenAddrs, addr)
	}
	opts = append(opts, libp2p.ListenAddrs(listenAddrs...))

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, NewNetworkError("create host", err, map[string]interface{}{
			"listen_addresses": config.ListenAddresses,
		})
	}

	log.Info("Created libp2p host",
		"peer_id", h.ID().String(),
		"listen_addresses", fmt.Sprint(h.Addrs()),
		"conn_low_water", connLowWater,
		"conn_high_water", connHighWater)

	return &HostWrapper{
		host:   h,
		config: config,
		log:    log,
	}, nil
}

// Host returns the underlying libp2p host
func (hw *HostWrapper) Host() host.Host {
	return hw.host
}

// ID returns the local peer ID
func (hw *HostWrapper) ID() peer.ID {
	return hw.host.ID()
}

// Close closes the host
func (hw *HostWrapper) Close() error {
	return hw.host.Close()
}
