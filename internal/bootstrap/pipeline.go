// Package bootstrap turns operator configuration, the bootstrap cache and
// remote network contacts into the deduplicated set of addresses a node dials
// to join the network.
package bootstrap

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"ant-bootstrap/internal/logger"
	"ant-bootstrap/internal/types"
)

// MaxConcurrentFetches bounds parallel endpoint fetches when merging sources
const MaxConcurrentFetches = 4

// MetadataSource is the cache entry metadata key naming where a peer came from
const MetadataSource = "source"

// AddressCache is the part of the bootstrap cache the pipeline reads and feeds
type AddressCache interface {
	Snapshot() []types.PeerAddress
	RecordSeenWithMetadata(addr types.PeerAddress, metadata map[string]string)
}

// ContactsSource retrieves addresses from remote network contacts endpoints
type ContactsSource interface {
	Fetch(ctx context.Context, endpoint string) ([]types.PeerAddress, error)
	FetchAll(ctx context.Context, endpoints []string) ([]types.PeerAddress, error)
}

// Source names one stage of the fallback chain
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceCache    Source = "cache"
	SourceContacts Source = "contacts"
	SourceDefaults Source = "defaults"
)

// Outcome is the tagged result of querying one source
type Outcome int

const (
	// OutcomeFound means the source produced at least one valid address
	OutcomeFound Outcome = iota
	// OutcomeEmpty means the source was consulted and had nothing
	OutcomeEmpty
	// OutcomeFailed means the source could not be consulted or all its
	// entries were rejected
	OutcomeFailed
)

// String returns string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SourceResult is what one source contributed to an acquisition
type SourceResult struct {
	Source  Source
	Outcome Outcome
	Addrs   []types.PeerAddress
	Err     error
}

func found(source Source, addrs []types.PeerAddress) SourceResult {
	if len(addrs) == 0 {
		return SourceResult{Source: source, Outcome: OutcomeEmpty}
	}
	return SourceResult{Source: source, Outcome: OutcomeFound, Addrs: addrs}
}

func failed(source Source, err error) SourceResult {
	return SourceResult{Source: source, Outcome: OutcomeFailed, Err: err}
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLocalPeerID excludes the local node's own addresses from every source
func WithLocalPeerID(id peer.ID) Option {
	return func(p *Pipeline) {
		p.localID = id
	}
}

// Pipeline runs the peer acquisition fallback chain:
// explicit peers, then the cache, then network contacts, then defaults.
type Pipeline struct {
	config   types.CacheConfig
	cache    AddressCache
	contacts ContactsSource
	localID  peer.ID
	log      *logger.Logger

	// background refreshes outlive Acquire and stop on Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex // guards closed and wg.Add against Close
	closed bool
}

// NewPipeline creates a pipeline. cache and contacts may be nil, in which case
// the corresponding source is always empty.
func NewPipeline(config types.CacheConfig, cache AddressCache, contacts ContactsSource, opts ...Option) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		config:   config,
		cache:    cache,
		contacts: contacts,
		log:      logger.Component("bootstrap.acquire"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns the addresses the node should dial. explicitPeers precede
// the configured explicit peers. Unless merge_sources is set the first source
// yielding a valid address wins. When nothing is obtained the error is a
// *PeersNotObtainedError.
func (p *Pipeline) Acquire(ctx context.Context, explicitPeers []string) ([]types.PeerAddress, error) {
	steps := []func(context.Context) SourceResult{
		func(context.Context) SourceResult { return p.explicit(explicitPeers) },
		func(context.Context) SourceResult { return p.cached() },
		p.fetched,
		func(context.Context) SourceResult { return p.defaults() },
	}

	var results []SourceResult
	for _, step := range steps {
		result := step(ctx)
		results = append(results, result)

		p.log.Debug("Bootstrap source consulted",
			"source", string(result.Source),
			"outcome", result.Outcome.String(),
			"addresses", len(result.Addrs),
			"error", result.Err)

		if result.Outcome == OutcomeFound && !p.config.MergeSources {
			if result.Source == SourceCache {
				p.refreshInBackground()
			}
			p.log.Info("Bootstrap peers obtained", "source", string(result.Source), "count", len(result.Addrs))
			return types.Dedup(result.Addrs), nil
		}

		if ctx.Err() != nil {
			results = append(results, failed(Source("context"), ctx.Err()))
			break
		}
	}

	var merged []types.PeerAddress
	var causes error
	for _, result := range results {
		merged = append(merged, result.Addrs...)
		causes = multierr.Append(causes, result.Err)
	}
	merged = types.Dedup(merged)

	if len(merged) > 0 {
		p.log.Info("Bootstrap peers obtained from merged sources", "count", len(merged))
		return merged, nil
	}

	p.log.Error("No bootstrap peers obtained from any source", "error", causes)
	return nil, &PeersNotObtainedError{Causes: causes}
}

// WaitBackground blocks until background cache refreshes have finished
func (p *Pipeline) WaitBackground() {
	p.wg.Wait()
}

// Close cancels background refreshes and waits for them. No refresh starts
// after Close.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pipeline) explicit(explicitPeers []string) SourceResult {
	raws := make([]string, 0, len(explicitPeers)+len(p.config.ExplicitPeers))
	raws = append(raws, explicitPeers...)
	raws = append(raws, p.config.ExplicitPeers...)
	return p.parseStatic(SourceExplicit, raws)
}

func (p *Pipeline) defaults() SourceResult {
	return p.parseStatic(SourceDefaults, p.config.DefaultPeers)
}

// parseStatic validates operator-supplied addresses. Invalid entries are
// dropped; they only surface as an error when nothing valid remains.
func (p *Pipeline) parseStatic(source Source, raws []string) SourceResult {
	if len(raws) == 0 {
		return SourceResult{Source: source, Outcome: OutcomeEmpty}
	}

	addrs, invalid := types.ParsePeerAddresses(raws)
	for _, err := range invalid {
		p.log.Warn("Dropped invalid bootstrap address", "source", string(source), "error", err)
	}

	addrs = p.withoutSelf(addrs)
	if len(addrs) == 0 && len(invalid) > 0 {
		return failed(source, multierr.Combine(invalid...))
	}
	return found(source, addrs)
}

func (p *Pipeline) cached() SourceResult {
	if p.cache == nil {
		return SourceResult{Source: SourceCache, Outcome: OutcomeEmpty}
	}
	return found(SourceCache, p.withoutSelf(p.cache.Snapshot()))
}

// fetched queries the contacts endpoints and feeds the results into the cache
func (p *Pipeline) fetched(ctx context.Context) SourceResult {
	if p.contacts == nil || len(p.config.ContactsEndpoints) == 0 {
		return SourceResult{Source: SourceContacts, Outcome: OutcomeEmpty}
	}

	var addrs []types.PeerAddress
	var err error
	if p.config.MergeSources {
		addrs, err = p.fetchConcurrently(ctx)
	} else {
		addrs, err = p.contacts.FetchAll(ctx, p.config.ContactsEndpoints)
	}

	addrs = p.withoutSelf(types.Dedup(addrs))
	p.record(addrs, SourceContacts)

	if len(addrs) == 0 {
		if err == nil {
			return SourceResult{Source: SourceContacts, Outcome: OutcomeEmpty}
		}
		return failed(SourceContacts, err)
	}
	return found(SourceContacts, addrs)
}

// fetchConcurrently fetches every endpoint and keeps the results in endpoint
// order. Errors from individual endpoints do not cancel the others.
func (p *Pipeline) fetchConcurrently(ctx context.Context) ([]types.PeerAddress, error) {
	endpoints := p.config.ContactsEndpoints
	results := make([][]types.PeerAddress, len(endpoints))
	errs := make([]error, len(endpoints))

	var g errgroup.Group
	g.SetLimit(MaxConcurrentFetches)
	for i, endpoint := range endpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			results[i], errs[i] = p.contacts.Fetch(ctx, endpoint)
			return nil
		})
	}
	_ = g.Wait()

	var addrs []types.PeerAddress
	for _, r := range results {
		addrs = append(addrs, r...)
	}
	return addrs, multierr.Combine(errs...)
}

// refreshInBackground warms the cache from contacts without blocking Acquire
func (p *Pipeline) refreshInBackground() {
	if !p.config.BackgroundRefresh || p.cache == nil || p.contacts == nil || len(p.config.ContactsEndpoints) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		addrs, err := p.contacts.FetchAll(p.ctx, p.config.ContactsEndpoints)
		if err != nil {
			p.log.Warn("Background contacts refresh failed", "error", err)
			return
		}
		addrs = p.withoutSelf(addrs)
		p.record(addrs, SourceContacts)
		p.log.Info("Background contacts refresh complete", "addresses", len(addrs))
	}()
}

func (p *Pipeline) record(addrs []types.PeerAddress, source Source) {
	if p.cache == nil {
		return
	}
	for _, addr := range addrs {
		p.cache.RecordSeenWithMetadata(addr, map[string]string{MetadataSource: string(source)})
	}
}

func (p *Pipeline) withoutSelf(addrs []types.PeerAddress) []types.PeerAddress {
	if p.localID == "" {
		return addrs
	}
	result := make([]types.PeerAddress, 0, len(addrs))
	for _, addr := range addrs {
		if addr.PeerID() == p.localID {
			continue
		}
		result = append(result, addr)
	}
	return result
}
