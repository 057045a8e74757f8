// internal/browser/proxyrelay_test.go
package browser

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStartRelayRequiresCredentials(t *testing.T) {
	u, err := url.Parse("http://proxy.example:8080")
	require.NoError(t, err)

	_, _, err = StartRelay(u, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, _, err = StartRelay(nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestStartRelayInjectsAuthorization(t *testing.T) {
	// Stand-in upstream proxy that only answers correctly authorized
	// requests.
	var seenAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Proxy-Authorization")
		if seenAuth == "" {
			w.WriteHeader(http.StatusProxyAuthRequired)
			return
		}
		_, _ = io.WriteString(w, "proxied")
	}))
	defer upstream.Close()

	upstreamURL, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	upstreamURL.User = url.UserPassword("alice", "s3cret")

	addr, stop, err := StartRelay(upstreamURL, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer stop()

	relayURL, err := url.Parse("http://" + addr)
	require.NoError(t, err)
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(relayURL)},
		Timeout:   5 * time.Second,
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://target.invalid/resource", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "proxied", string(body))
	// Basic alice:s3cret
	assert.Equal(t, "Basic YWxpY2U6czNjcmV0", seenAuth)
}

func TestCombineContext(t *testing.T) {
	t.Run("secondary cancellation propagates", func(t *testing.T) {
		parent := context.Background()
		secondary, cancelSecondary := context.WithCancel(context.Background())

		combined, cancel := CombineContext(parent, secondary)
		defer cancel()

		cancelSecondary()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context did not observe secondary cancellation")
		}
	})

	t.Run("parent cancellation propagates", func(t *testing.T) {
		parent, cancelParent := context.WithCancel(context.Background())
		combined, cancel := CombineContext(parent, context.Background())
		defer cancel()

		cancelParent()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context did not observe parent cancellation")
		}
	})
}
