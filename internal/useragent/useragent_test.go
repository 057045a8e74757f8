// File: internal/useragent/useragent_test.go
package useragent

import (
	"compress/gzip"
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	windowsChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
	wow64ChromeUA   = "Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
	macChromeUA     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
	linuxChromeUA   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
	firefoxUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:142.0) Gecko/20100101 Firefox/142.0"
	edgeUA          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36 Edg/139.0.0.0"
	operaUA         = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36 OPR/124.0.0.0"
	androidUA       = "Mozilla/5.0 (Linux; Android 16) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Mobile Safari/537.36"
)

func TestPoolPickFiltersToDesktopChrome(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		ua, err := pool.Pick(rng)
		require.NoError(t, err)
		assert.Contains(t, ua, "Chrome/")
		assert.NotContains(t, ua, "Edg")
		assert.NotContains(t, ua, "OPR/")
		assert.NotContains(t, ua, "Mobile")
	}
}

func TestPoolPickEmptyAfterFiltering(t *testing.T) {
	pool := &Pool{agents: []string{firefoxUA, edgeUA, operaUA, androidUA}}

	_, err := pool.Pick(rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestPoolReplace(t *testing.T) {
	pool := &Pool{agents: []string{windowsChromeUA}}

	// An empty update must not wipe the pool.
	pool.Replace(nil)
	ua, err := pool.Pick(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, windowsChromeUA, ua)

	pool.Replace([]string{macChromeUA})
	ua, err = pool.Pick(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, macChromeUA, ua)
}

// -- Metadata Derivation Tests --

func TestDeriveMetadata(t *testing.T) {
	testCases := []struct {
		name            string
		ua              string
		wantPlatform    string
		wantPlatformVer string
		wantWow64       bool
	}{
		{
			name:            "windows",
			ua:              windowsChromeUA,
			wantPlatform:    "Windows",
			wantPlatformVer: "10.0.0",
		},
		{
			name:            "windows wow64",
			ua:              wow64ChromeUA,
			wantPlatform:    "Windows",
			wantPlatformVer: "10.0.0",
			wantWow64:       true,
		},
		{
			name:            "macos",
			ua:              macChromeUA,
			wantPlatform:    "macOS",
			wantPlatformVer: "10.15.7",
		},
		{
			name:         "linux",
			ua:           linuxChromeUA,
			wantPlatform: "Linux",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			md, err := Derive(tc.ua)
			require.NoError(t, err)

			assert.Equal(t, "x86", md.Architecture)
			assert.Equal(t, "64", md.Bitness)
			assert.False(t, md.Mobile)
			assert.Empty(t, md.Model)
			assert.Equal(t, tc.wantPlatform, md.Platform)
			assert.Equal(t, tc.wantPlatformVer, md.PlatformVersion)
			assert.Equal(t, tc.wantWow64, md.Wow64)
			assert.Equal(t, "139.0.0.0", md.FullVersion)

			wantBrands := []BrandVersion{
				{Brand: "Not)A;Brand", Version: "8"},
				{Brand: "Chromium", Version: "139"},
				{Brand: "Google Chrome", Version: "139"},
			}
			if diff := cmp.Diff(wantBrands, md.Brands); diff != "" {
				t.Errorf("brand list mismatch (-want +got):\n%s", diff)
			}

			wantFullVersions := []BrandVersion{
				{Brand: "Not)A;Brand", Version: "8.0.0.0"},
				{Brand: "Chromium", Version: "139.0.0.0"},
				{Brand: "Google Chrome", Version: "139.0.0.0"},
			}
			if diff := cmp.Diff(wantFullVersions, md.FullVersionList); diff != "" {
				t.Errorf("full version list mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeriveRejectsNonChrome(t *testing.T) {
	_, err := Derive(firefoxUA)
	assert.ErrorIs(t, err, ErrNotChrome)

	_, err = Derive("")
	assert.ErrorIs(t, err, ErrNotChrome)
}

func TestDeriveIsDeterministic(t *testing.T) {
	first, err := Derive(windowsChromeUA)
	require.NoError(t, err)
	second, err := Derive(windowsChromeUA)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMetadataCDP(t *testing.T) {
	md, err := Derive(wow64ChromeUA)
	require.NoError(t, err)

	cdpMD := md.CDP()
	require.NotNil(t, cdpMD)
	assert.Equal(t, "x86", cdpMD.Architecture)
	assert.Equal(t, "64", cdpMD.Bitness)
	assert.True(t, cdpMD.Wow64)
	require.Len(t, cdpMD.Brands, 3)
	assert.Equal(t, "Not)A;Brand", cdpMD.Brands[0].Brand)
	// The full version reaches the wire through the version list; the
	// protocol carries no standalone field for it.
	require.Len(t, cdpMD.FullVersionList, 3)
	assert.Equal(t, "139.0.0.0", cdpMD.FullVersionList[1].Version)
	assert.Equal(t, md.FullVersion, cdpMD.FullVersionList[2].Version)
}

// -- Refresh Tests --

func TestPoolRefresh(t *testing.T) {
	t.Run("replaces pool from remote list", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`["` + linuxChromeUA + `"]`))
		}))
		defer srv.Close()

		pool := &Pool{agents: []string{windowsChromeUA}}
		require.NoError(t, pool.Refresh(context.Background(), srv.Client(), srv.URL))

		ua, err := pool.Pick(rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		assert.Equal(t, linuxChromeUA, ua)
	})

	t.Run("gzip encoded response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			_, _ = gz.Write([]byte(`["` + macChromeUA + `"]`))
			_ = gz.Close()
		}))
		defer srv.Close()

		pool := &Pool{agents: []string{windowsChromeUA}}
		client := NewListClient()
		require.NoError(t, pool.Refresh(context.Background(), client, srv.URL))

		ua, err := pool.Pick(rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		assert.Equal(t, macChromeUA, ua)
	})

	t.Run("keeps snapshot on server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		pool := &Pool{agents: []string{windowsChromeUA}}
		err := pool.Refresh(context.Background(), srv.Client(), srv.URL)
		require.Error(t, err)

		ua, pickErr := pool.Pick(rand.New(rand.NewSource(1)))
		require.NoError(t, pickErr)
		assert.Equal(t, windowsChromeUA, ua)
	})

	t.Run("keeps snapshot on malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()

		pool := &Pool{agents: []string{windowsChromeUA}}
		require.Error(t, pool.Refresh(context.Background(), srv.Client(), srv.URL))

		ua, err := pool.Pick(rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		assert.Equal(t, windowsChromeUA, ua)
	})
}

func TestIsDesktopChrome(t *testing.T) {
	assert.True(t, isDesktopChrome(windowsChromeUA))
	assert.True(t, isDesktopChrome(strings.TrimSpace(linuxChromeUA)))
	assert.False(t, isDesktopChrome(firefoxUA))
	assert.False(t, isDesktopChrome(edgeUA))
	assert.False(t, isDesktopChrome(operaUA))
	assert.False(t, isDesktopChrome(androidUA))
}
