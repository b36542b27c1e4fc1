// Package contacts retrieves bootstrap peer addresses from remote network
// contacts endpoints over HTTP(S).
package contacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"ant-bootstrap/internal/logger"
	"ant-bootstrap/internal/types"
)

// MaxBodySize caps how much of a contacts response is read
const MaxBodySize = 1 << 20

// UserAgent is sent with every contacts request
const UserAgent = "ant-bootstrap/1.0"

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithClock replaces the clock used between attempts
func WithClock(c clock.Clock) Option {
	return func(f *Fetcher) {
		f.clock = c
	}
}

// Fetcher downloads and validates network contacts lists
type Fetcher struct {
	client     *http.Client
	attempts   int
	timeout    time.Duration
	retryDelay time.Duration
	clock      clock.Clock
	log        *logger.Logger
}

// NewFetcher builds a fetcher from the retry settings in cfg. FetchRetries is
// the total number of attempts per endpoint and FetchTimeout bounds each one.
func NewFetcher(cfg types.CacheConfig, opts ...Option) *Fetcher {
	cfg = cfg.WithDefaults()

	f := &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		attempts:   cfg.FetchRetries,
		timeout:    cfg.FetchTimeout,
		retryDelay: cfg.RetryDelay,
		clock:      clock.New(),
		log:        logger.Component("bootstrap.contacts"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.attempts < 1 {
		f.attempts = 1
	}
	return f
}

// Fetch retrieves endpoint, retrying transport failures. A response that
// parses to zero valid addresses is a *NoMultiAddrObtainedError and is not
// retried; exhausting every attempt is a *NetworkContactsUnretrievableError.
func (f *Fetcher) Fetch(ctx context.Context, endpoint string) ([]types.PeerAddress, error) {
	var lastErr error

	for attempt := 1; attempt <= f.attempts; attempt++ {
		body, err := f.get(ctx, endpoint)
		if err == nil {
			return f.parse(endpoint, body)
		}
		lastErr = err

		f.log.Debug("Network contacts attempt failed",
			"endpoint", endpoint,
			"attempt", attempt,
			"max_attempts", f.attempts,
			"error", err)

		if ctx.Err() != nil {
			return nil, &NetworkContactsUnretrievableError{Endpoint: endpoint, Attempts: attempt, Cause: ctx.Err()}
		}

		if attempt < f.attempts && f.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, &NetworkContactsUnretrievableError{Endpoint: endpoint, Attempts: attempt, Cause: ctx.Err()}
			case <-f.clock.After(f.retryDelay):
			}
		}
	}

	return nil, &NetworkContactsUnretrievableError{Endpoint: endpoint, Attempts: f.attempts, Cause: lastErr}
}

// FetchAll tries endpoints in order and returns the first non-empty result.
// If none succeeds the per-endpoint errors are combined.
func (f *Fetcher) FetchAll(ctx context.Context, endpoints []string) ([]types.PeerAddress, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	var errs error
	for _, endpoint := range endpoints {
		addrs, err := f.Fetch(ctx, endpoint)
		if err == nil {
			return addrs, nil
		}
		f.log.Warn("Network contacts endpoint yielded no peers", "endpoint", endpoint, "error", err)
		errs = multierr.Append(errs, err)

		if ctx.Err() != nil {
			break
		}
	}
	return nil, errs
}

// get performs one attempt with its own timeout
func (f *Fetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func (f *Fetcher) parse(endpoint string, body []byte) ([]types.PeerAddress, error) {
	raws := ParseContacts(body)
	addrs, invalid := types.ParsePeerAddresses(raws)
	addrs = types.Dedup(addrs)

	for _, err := range invalid {
		f.log.Debug("Dropped invalid network contact", "endpoint", endpoint, "error", err)
	}

	if len(addrs) == 0 {
		return nil, &NoMultiAddrObtainedError{Endpoint: endpoint, Dropped: len(invalid)}
	}

	f.log.Info("Fetched network contacts",
		"endpoint", endpoint,
		"addresses", len(addrs),
		"dropped", len(invalid))
	return addrs, nil
}

// ParseContacts splits a contacts body into raw address strings. A body
// starting with '[' is read as a JSON array of strings; anything else is
// whitespace separated with '#' comment lines skipped. A malformed JSON body
// yields no entries; non-string elements of a JSON array are skipped.
func ParseContacts(body []byte) []string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil
		}
		result := make([]string, 0, len(list))
		for _, elem := range list {
			var addr string
			if err := json.Unmarshal(elem, &addr); err != nil || addr == "" {
				continue
			}
			result = append(result, addr)
		}
		return result
	}

	var result []string
	for _, line := range strings.Split(string(trimmed), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		result = append(result, strings.Fields(line)...)
	}
	return result
}
