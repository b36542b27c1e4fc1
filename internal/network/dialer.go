package network

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"golang.org/x/sync/errgroup"

	"ant-bootstrap/internal/logger"
	"ant-bootstrap/internal/types"
)

// Dialer connects to acquired bootstrap addresses
type Dialer struct {
	host        host.Host
	timeout     time.Duration
	concurrency int
	log         *logger.Logger
}

// NewDialer creates a dialer on h
func NewDialer(h host.Host, config types.NetworkConfig) *Dialer {
	config = config.WithDefaults()
	return &Dialer{
		host:        h,
		timeout:     config.DialTimeout,
		concurrency: config.MaxConcurrentDials,
		log:         logger.Component("network.dialer"),
	}
}

// Observe registers handler for the host's outbound connections
func (d *Dialer) Observe(handler ConnectionEventHandler) {
	d.host.Network().Notify(NewNotifiee(handler))
}

// DialAll dials every address with bounded concurrency. Results are in input
// order; a failed dial never cancels the others.
func (d *Dialer) DialAll(ctx context.Context, addrs []types.PeerAddress) []DialResult {
	results := make([]DialResult, len(addrs))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			results[i] = DialResult{Address: addr, Err: d.dial(ctx, addr)}
			return nil
		})
	}
	_ = g.Wait()

	connected := 0
	for _, r := range results {
		if r.Err == nil {
			connected++
		}
	}
	d.log.Info("Dialed bootstrap peers", "attempted", len(addrs), "connected", connected)

	return results
}

func (d *Dialer) dial(ctx context.Context, addr types.PeerAddress) error {
	if addr.PeerID() == d.host.ID() {
		return ErrSelfDial
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.host.Connect(ctx, addr.AddrInfo()); err != nil {
		d.log.Debug("Bootstrap dial failed",
			"event", EventConnectionFailed.String(),
			"address", addr.String(),
			"error", err)
		return &ConnectionError{
			PeerID:  addr.PeerID().String(),
			Address: addr.Multiaddr().String(),
			Cause:   err,
		}
	}
	return nil
}
