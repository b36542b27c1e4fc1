package network

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"ant-bootstrap/internal/logger"
	"ant-bootstrap/internal/types"
)

// CacheObserver records every peer the node successfully dialed into the
// bootstrap cache
type CacheObserver struct {
	recorder Recorder
	log      *logger.Logger
}

// NewCacheObserver creates an observer feeding recorder
func NewCacheObserver(recorder Recorder) *CacheObserver {
	return &CacheObserver{
		recorder: recorder,
		log:      logger.Component("network.observer"),
	}
}

// OnPeerConnected records addr, appending /p2p/<peerID> when it is missing
func (o *CacheObserver) OnPeerConnected(peerID peer.ID, addr multiaddr.Multiaddr) error {
	if addr == nil {
		return ErrInvalidAddress
	}

	if _, err := addr.ValueForProtocol(multiaddr.P_P2P); err != nil {
		p2p, err := multiaddr.NewComponent("p2p", peerID.String())
		if err != nil {
			return fmt.Errorf("%w: peer %s: %v", ErrInvalidAddress, peerID, err)
		}
		addr = addr.Encapsulate(p2p)
	}

	peerAddr, err := types.NewPeerAddress(addr)
	if err != nil {
		o.log.Debug("Connected peer address not cacheable",
			"peer_id", peerID.String(),
			"address", addr.String(),
			"error", err)
		return err
	}

	o.recorder.RecordSeen(peerAddr)
	o.log.Debug("Recorded reachable peer",
		"event", EventConnected.String(),
		"address", peerAddr.String())
	return nil
}

// OnPeerDisconnected keeps the entry; recency is only refreshed by new
// connections
func (o *CacheObserver) OnPeerDisconnected(peerID peer.ID, reason error) error {
	o.log.Debug("Peer disconnected",
		"event", EventDisconnected.String(),
		"peer_id", peerID.String(),
		"error", reason)
	return nil
}

// NewNotifiee adapts handler to libp2p network notifications. Only outbound
// connections are reported: inbound remote addresses carry ephemeral ports.
func NewNotifiee(handler ConnectionEventHandler) *network.NotifyBundle {
	log := logger.Component("network.notifiee")

	return &network.NotifyBundle{
		ConnectedF: func(n network.Network, conn network.Conn) {
			if conn.Stat().Direction != network.DirOutbound {
				return
			}
			if err := handler.OnPeerConnected(conn.RemotePeer(), conn.RemoteMultiaddr()); err != nil {
				log.Debug("Connection handler failed",
					"peer_id", conn.RemotePeer().String(),
					"error", err)
			}
		},
		DisconnectedF: func(n network.Network, conn network.Conn) {
			if conn.Stat().Direction != network.DirOutbound {
				return
			}
			_ = handler.OnPeerDisconnected(conn.RemotePeer(), nil)
		},
	}
}
