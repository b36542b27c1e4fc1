// Package types contains the address and cache entry data structures shared by
// the bootstrap cache, the contacts fetcher and the acquisition pipeline.
package types

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

const (
	// MinPort is the lowest port a dialable peer address may carry
	MinPort = 1
	// MaxPort is the highest port a dialable peer address may carry
	MaxPort = 65535
)

// PeerAddress is a validated, dialable multiaddr ending in /p2p/<peer-id>.
// The zero value is not a valid address; use ParsePeerAddress.
type PeerAddress struct {
	addr multiaddr.Multiaddr
	id   peer.ID
	key  string
}

// ParsePeerAddress validates raw and returns it as a PeerAddress.
//
// Rejected inputs: empty strings, strings that are not multiaddrs, addresses
// without a host, without a tcp/udp port, with port 0, and addresses whose
// trailing /p2p component is missing or is not a valid peer identifier.
func ParsePeerAddress(raw string) (PeerAddress, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PeerAddress{}, newInvalidPeerAddr(raw, "address cannot be empty", nil)
	}

	maddr, err := multiaddr.NewMultiaddr(raw)
	if err != nil {
		return PeerAddress{}, newInvalidPeerAddr(raw, "not a multiaddr", err)
	}

	return NewPeerAddress(maddr)
}

// NewPeerAddress validates an already parsed multiaddr
func NewPeerAddress(maddr multiaddr.Multiaddr) (PeerAddress, error) {
	if maddr == nil {
		return PeerAddress{}, newInvalidPeerAddr("", "address cannot be empty", nil)
	}
	raw := maddr.String()

	transport, id := peer.SplitAddr(maddr)
	if id == "" {
		return PeerAddress{}, newInvalidPeerAddr(raw, "missing /p2p peer identity", nil)
	}
	if err := id.Validate(); err != nil {
		return PeerAddress{}, newInvalidPeerAddr(raw, "invalid peer identity", err)
	}
	if transport == nil || len(transport.Protocols()) == 0 {
		return PeerAddress{}, newInvalidPeerAddr(raw, "missing transport", nil)
	}

	if err := validateTransport(transport); err != nil {
		return PeerAddress{}, newInvalidPeerAddr(raw, err.Error(), nil)
	}

	return PeerAddress{addr: maddr, id: id, key: raw}, nil
}

// validateTransport checks the host and port segments of a transport multiaddr
func validateTransport(transport multiaddr.Multiaddr) error {
	hasHost := false
	for _, code := range []int{
		multiaddr.P_IP4, multiaddr.P_IP6,
		multiaddr.P_DNS, multiaddr.P_DNS4, multiaddr.P_DNS6,
	} {
		if _, err := transport.ValueForProtocol(code); err == nil {
			hasHost = true
			break
		}
	}
	if !hasHost {
		return fmt.Errorf("missing ip4/ip6/dns host")
	}

	portStr, err := transport.ValueForProtocol(multiaddr.P_TCP)
	if err != nil {
		portStr, err = transport.ValueForProtocol(multiaddr.P_UDP)
		if err != nil {
			return fmt.Errorf("missing tcp or udp port")
		}
	}

	return validatePort(portStr)
}

// validatePort validates port number
func validatePort(portStr string) error {
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < MinPort || port > MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", MinPort, MaxPort, port)
	}

	return nil
}

// ParsePeerAddresses validates every raw string, dropping the invalid ones.
// The returned errors describe each dropped entry in input order.
func ParsePeerAddresses(raws []string) ([]PeerAddress, []error) {
	addrs := make([]PeerAddress, 0, len(raws))
	var errs []error
	for _, raw := range raws {
		addr, err := ParsePeerAddress(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs, errs
}

// String returns the canonical multiaddr string
func (a PeerAddress) String() string {
	return a.key
}

// Key is the identity used for set membership and deduplication
func (a PeerAddress) Key() string {
	return a.key
}

// IsZero reports whether a was never validated
func (a PeerAddress) IsZero() bool {
	return a.key == ""
}

// Multiaddr returns the full multiaddr, including the /p2p component
func (a PeerAddress) Multiaddr() multiaddr.Multiaddr {
	return a.addr
}

// PeerID returns the identity segment
func (a PeerAddress) PeerID() peer.ID {
	return a.id
}

// AddrInfo converts the address into the form libp2p hosts dial
func (a PeerAddress) AddrInfo() peer.AddrInfo {
	transport, _ := peer.SplitAddr(a.addr)
	return peer.AddrInfo{ID: a.id, Addrs: []multiaddr.Multiaddr{transport}}
}

// Equal reports address identity
func (a PeerAddress) Equal(other PeerAddress) bool {
	return a.key == other.key
}

// Dedup removes repeated addresses, keeping the first occurrence
func Dedup(addrs []PeerAddress) []PeerAddress {
	seen := make(map[string]bool, len(addrs))
	result := make([]PeerAddress, 0, len(addrs))
	for _, addr := range addrs {
		if seen[addr.key] {
			continue
		}
		seen[addr.key] = true
		result = append(result, addr)
	}
	return result
}

// CacheEntry is one known peer address with its recency timestamp
type CacheEntry struct {
	Address  PeerAddress
	LastSeen time.Time
	Metadata map[string]string
}

// Clone returns a copy that shares no mutable state with e
func (e CacheEntry) Clone() CacheEntry {
	clone := e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// SortEntries orders entries by address key, the stable encoding order
func SortEntries(entries []CacheEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address.key < entries[j].Address.key
	})
}
