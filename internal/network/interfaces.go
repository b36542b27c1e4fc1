package network

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"ant-bootstrap/internal/types"
)

// ConnectionEventHandler receives outbound connection lifecycle events
type ConnectionEventHandler interface {
	OnPeerConnected(peerID peer.ID, addr multiaddr.Multiaddr) error
	OnPeerDisconnected(peerID peer.ID, reason error) error
}

// Recorder is the part of the bootstrap cache fed by live connections
type Recorder interface {
	RecordSeen(addr types.PeerAddress)
}

// ConnectionEventType represents the type of connection event
type ConnectionEventType int

const (
	EventConnected ConnectionEventType = iota
	EventDisconnected
	EventConnectionFailed
)

// String returns string representation of connection event type
func (t ConnectionEventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventConnectionFailed:
		return "connection_failed"
	default:
		return "unknown"
	}
}

// DialResult is the outcome of dialing one acquired address
type DialResult struct {
	Address types.PeerAddress
	Err     error
}
