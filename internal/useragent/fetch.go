// File: internal/useragent/fetch.go
package useragent

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
)

// DefaultListURL is the externally maintained list of currently shipping
// browser identities, refreshed upstream a few times a week.
const DefaultListURL = "https://jnrbsn.github.io/user-agents/user-agents.json"

const fetchTimeout = 15 * time.Second

// decompressTransport negotiates and transparently decodes compressed
// responses. GitHub Pages serves the list brotli- or gzip-encoded.
type decompressTransport struct {
	base http.RoundTripper
}

func (t *decompressTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, identity")
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	switch resp.Header.Get("Content-Encoding") {
	case "br":
		resp.Body = &decodedBody{reader: brotli.NewReader(resp.Body), underlying: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.ContentLength = -1
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("invalid gzip response body: %w", err)
		}
		resp.Body = &decodedBody{reader: zr, underlying: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.ContentLength = -1
	}
	return resp, nil
}

type decodedBody struct {
	reader     io.Reader
	underlying io.ReadCloser
}

func (b *decodedBody) Read(p []byte) (int, error) { return b.reader.Read(p) }

func (b *decodedBody) Close() error {
	if c, ok := b.reader.(io.Closer); ok {
		c.Close()
	}
	return b.underlying.Close()
}

// NewListClient returns an HTTP client suitable for fetching the identity
// list.
func NewListClient() *http.Client {
	return &http.Client{
		Transport: &decompressTransport{},
		Timeout:   fetchTimeout,
	}
}

// Refresh replaces the pool contents with the latest published list. The
// embedded snapshot remains in place on any failure.
func (p *Pool) Refresh(ctx context.Context, client *http.Client, listURL string) error {
	if client == nil {
		client = NewListClient()
	}
	if listURL == "" {
		listURL = DefaultListURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch user agent list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user agent list fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read user agent list: %w", err)
	}

	var agents []string
	if err := json.Unmarshal(body, &agents); err != nil {
		return fmt.Errorf("failed to decode user agent list: %w", err)
	}

	p.Replace(agents)
	return nil
}
