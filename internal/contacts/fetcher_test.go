package contacts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	p2ptest "github.com/libp2p/go-libp2p/core/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"ant-bootstrap/internal/types"
)

func testAddrString(t *testing.T, i int) string {
	return fmt.Sprintf("/ip4/10.1.0.%d/tcp/4000/p2p/%s", i, p2ptest.RandPeerIDFatal(t))
}

func testFetcher(attempts int) *Fetcher {
	return NewFetcher(types.CacheConfig{
		FetchRetries: attempts,
		FetchTimeout: 500 * time.Millisecond,
		RetryDelay:   5 * time.Millisecond,
	})
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestFetcher_Fetch(t *testing.T) {
	a, b := testAddrString(t, 1), testAddrString(t, 2)

	t.Run("plain text drops invalid entries", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
			fmt.Fprintf(w, "# contacts\n%s\nnot-an-address\n%s\n", a, b)
		})

		addrs, err := testFetcher(1).Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		require.Len(t, addrs, 2)
		assert.Equal(t, a, addrs[0].String())
		assert.Equal(t, b, addrs[1].String())
	})

	t.Run("json array", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `["%s", "garbage", "%s", "%s"]`, a, b, a)
		})

		addrs, err := testFetcher(1).Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Len(t, addrs, 2, "duplicates collapse")
	})

	t.Run("empty body is no multiaddr", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {})

		_, err := testFetcher(3).Fetch(context.Background(), server.URL)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoMultiAddrObtained)

		var noAddr *NoMultiAddrObtainedError
		require.True(t, errors.As(err, &noAddr))
		assert.Equal(t, server.URL, noAddr.Endpoint)
	})

	t.Run("all entries invalid is no multiaddr", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "nope\n/ip4/1.2.3.4/tcp/1\n")
		})

		_, err := testFetcher(1).Fetch(context.Background(), server.URL)
		var noAddr *NoMultiAddrObtainedError
		require.True(t, errors.As(err, &noAddr))
		assert.Equal(t, 2, noAddr.Dropped)
	})

	t.Run("server errors exhaust attempts", func(t *testing.T) {
		var hits atomic.Int32
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := testFetcher(3).Fetch(context.Background(), server.URL)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNetworkContactsUnretrievable)

		var unretrievable *NetworkContactsUnretrievableError
		require.True(t, errors.As(err, &unretrievable))
		assert.Equal(t, 3, unretrievable.Attempts)
		assert.Equal(t, server.URL, unretrievable.Endpoint)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("recovers after transient failure", func(t *testing.T) {
		var hits atomic.Int32
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprintln(w, a)
		})

		addrs, err := testFetcher(2).Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Len(t, addrs, 1)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("each attempt times out independently", func(t *testing.T) {
		var hits atomic.Int32
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})

		f := NewFetcher(types.CacheConfig{FetchRetries: 2, FetchTimeout: 50 * time.Millisecond, RetryDelay: time.Millisecond})
		_, err := f.Fetch(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrNetworkContactsUnretrievable)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := testFetcher(5).Fetch(ctx, server.URL)
		var unretrievable *NetworkContactsUnretrievableError
		require.True(t, errors.As(err, &unretrievable))
		assert.Equal(t, 1, unretrievable.Attempts)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFetcher_FetchAll(t *testing.T) {
	a := testAddrString(t, 1)

	failing := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	empty := serve(t, func(w http.ResponseWriter, r *http.Request) {})
	good := serve(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, a)
	})

	t.Run("first non-empty endpoint wins", func(t *testing.T) {
		addrs, err := testFetcher(1).FetchAll(context.Background(), []string{failing.URL, empty.URL, good.URL})
		require.NoError(t, err)
		require.Len(t, addrs, 1)
		assert.Equal(t, a, addrs[0].String())
	})

	t.Run("every failure is reported", func(t *testing.T) {
		_, err := testFetcher(1).FetchAll(context.Background(), []string{failing.URL, empty.URL})
		require.Error(t, err)
		assert.Len(t, multierr.Errors(err), 2)
		assert.ErrorIs(t, err, ErrNetworkContactsUnretrievable)
		assert.ErrorIs(t, err, ErrNoMultiAddrObtained)
	})

	t.Run("no endpoints", func(t *testing.T) {
		_, err := testFetcher(1).FetchAll(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoEndpoints)
	})
}

func TestParseContacts(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"empty", "   \n", nil},
		{"lines and comments", "# header\n/a\n\n  /b  \n", []string{"/a", "/b"}},
		{"space separated", "/a /b\t/c", []string{"/a", "/b", "/c"}},
		{"json", `["/a","/b"]`, []string{"/a", "/b"}},
		{"broken json", `["/a",`, nil},
		{"non-string json elements skipped", `["/a", 7, {"x": 1}, null, "/b"]`, []string{"/a", "/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseContacts([]byte(tt.body)))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := &NetworkContactsUnretrievableError{Endpoint: "https://contacts", Attempts: 3, Cause: errors.New("refused")}
	assert.True(t, strings.Contains(err.Error(), "after 3 attempts"))

	noAddr := &NoMultiAddrObtainedError{Endpoint: "https://contacts"}
	assert.Contains(t, noAddr.Error(), "https://contacts")
}
