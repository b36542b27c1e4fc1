package network

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	p2ptest "github.com/libp2p/go-libp2p/core/test"
	"github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ant-bootstrap/internal/keys"
	"ant-bootstrap/internal/types"
)

type recordingCache struct {
	mu    sync.Mutex
	addrs []types.PeerAddress
}

func (c *recordingCache) RecordSeen(addr types.PeerAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addrs = append(c.addrs, addr)
}

func (c *recordingCache) recorded() []types.PeerAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.PeerAddress(nil), c.addrs...)
}

func loopbackConfig() types.NetworkConfig {
	return types.NetworkConfig{
		ListenAddresses: []string{"/ip4/127.0.0.1/tcp/0"},
		DialTimeout:     5 * time.Second,
	}
}

func newTestHost(t *testing.T) *HostWrapper {
	h, err := NewHostWrapper(loopbackConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// listenAddress returns the first dialable address of h including /p2p
func listenAddress(t *testing.T, h *HostWrapper) types.PeerAddress {
	addrs, err := peer.AddrInfoToP2pAddrs(&peer.AddrInfo{ID: h.ID(), Addrs: h.Host().Addrs()})
	require.NoError(t, err)
	require.NotEmpty(t, addrs)

	addr, err := types.NewPeerAddress(addrs[0])
	require.NoError(t, err)
	return addr
}

func TestNewHostWrapper(t *testing.T) {
	t.Run("uses provided identity", func(t *testing.T) {
		km := keys.NewKeyManager()
		privateKey, err := km.GeneratePrivateKey()
		require.NoError(t, err)
		privKey, err := km.PrivKey(privateKey)
		require.NoError(t, err)
		expected, err := km.PeerID(privateKey)
		require.NoError(t, err)

		h, err := NewHostWrapper(loopbackConfig(), privKey)
		require.NoError(t, err)
		defer h.Close()

		assert.Equal(t, expected, h.ID())
		assert.NotEmpty(t, h.Host().Addrs())
	})

	t.Run("rejects bad listen address", func(t *testing.T) {
		_, err := NewHostWrapper(types.NetworkConfig{ListenAddresses: []string{"not-a-multiaddr"}}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestCacheObserver_OnPeerConnected(t *testing.T) {
	id := p2ptest.RandPeerIDFatal(t)

	t.Run("appends peer identity", func(t *testing.T) {
		cache := &recordingCache{}
		observer := NewCacheObserver(cache)

		addr, err := multiaddr.NewMultiaddr("/ip4/10.4.0.1/tcp/4001")
		require.NoError(t, err)

		require.NoError(t, observer.OnPeerConnected(id, addr))
		recorded := cache.recorded()
		require.Len(t, recorded, 1)
		assert.Equal(t, "/ip4/10.4.0.1/tcp/4001/p2p/"+id.String(), recorded[0].String())
	})

	t.Run("keeps existing identity", func(t *testing.T) {
		cache := &recordingCache{}
		observer := NewCacheObserver(cache)

		addr, err := multiaddr.NewMultiaddr("/ip4/10.4.0.1/tcp/4001/p2p/" + id.String())
		require.NoError(t, err)

		require.NoError(t, observer.OnPeerConnected(id, addr))
		assert.Equal(t, addr.String(), cache.recorded()[0].String())
	})

	t.Run("rejects uncacheable address", func(t *testing.T) {
		cache := &recordingCache{}
		observer := NewCacheObserver(cache)

		addr, err := multiaddr.NewMultiaddr("/ip4/10.4.0.1/tcp/0")
		require.NoError(t, err)

		err = observer.OnPeerConnected(id, addr)
		assert.ErrorIs(t, err, types.ErrInvalidPeerAddr)
		assert.Empty(t, cache.recorded())
	})

	t.Run("nil address", func(t *testing.T) {
		err := NewCacheObserver(&recordingCache{}).OnPeerConnected(id, nil)
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("disconnect is ignored", func(t *testing.T) {
		cache := &recordingCache{}
		assert.NoError(t, NewCacheObserver(cache).OnPeerDisconnected(id, errors.New("closed")))
		assert.Empty(t, cache.recorded())
	})
}

func TestDialer_RecordsOutboundConnections(t *testing.T) {
	local := newTestHost(t)
	remote := newTestHost(t)
	target := listenAddress(t, remote)

	localCache := &recordingCache{}
	dialer := NewDialer(local.Host(), loopbackConfig())
	dialer.Observe(NewCacheObserver(localCache))

	remoteCache := &recordingCache{}
	NewDialer(remote.Host(), loopbackConfig()).Observe(NewCacheObserver(remoteCache))

	results := dialer.DialAll(context.Background(), []types.PeerAddress{target})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	require.Eventually(t, func() bool {
		return len(localCache.recorded()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	recorded := localCache.recorded()[0]
	assert.Equal(t, remote.ID(), recorded.PeerID())
	assert.Equal(t, target.String(), recorded.String())

	// the inbound side never records the dialer's ephemeral port
	assert.Empty(t, remoteCache.recorded())
}

func TestDialer_DialAll(t *testing.T) {
	local := newTestHost(t)
	dialer := NewDialer(local.Host(), types.NetworkConfig{DialTimeout: 500 * time.Millisecond})

	unreachable, err := types.ParsePeerAddress("/ip4/127.0.0.1/tcp/1/p2p/" + p2ptest.RandPeerIDFatal(t).String())
	require.NoError(t, err)
	self := listenAddress(t, local)

	results := dialer.DialAll(context.Background(), []types.PeerAddress{unreachable, self})
	require.Len(t, results, 2)

	assert.Equal(t, unreachable.String(), results[0].Address.String())
	var connErr *ConnectionError
	require.True(t, errors.As(results[0].Err, &connErr))
	assert.Equal(t, unreachable.PeerID().String(), connErr.PeerID)

	assert.ErrorIs(t, results[1].Err, ErrSelfDial)
}

func TestConnectionEventType_String(t *testing.T) {
	assert.Equal(t, "connected", EventConnected.String())
	assert.Equal(t, "disconnected", EventDisconnected.String())
	assert.Equal(t, "connection_failed", EventConnectionFailed.String())
	assert.Equal(t, "unknown", ConnectionEventType(9).String())
}
