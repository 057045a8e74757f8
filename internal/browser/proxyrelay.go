// internal/browser/proxyrelay.go
package browser

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
)

// StartRelay runs a loopback forward proxy that chains every request through
// the credentialed upstream proxy. The browser's --proxy-server switch has no
// room for an authority component, so the relay injects the
// Proxy-Authorization header on the browser's behalf.
//
// It returns the listen address (host:port) and a stop function that shuts
// the relay down.
func StartRelay(upstream *url.URL, logger *zap.Logger) (string, func(), error) {
	if upstream == nil || upstream.User == nil {
		return "", nil, fmt.Errorf("relay requires a credentialed upstream proxy")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("proxy_relay")

	password, _ := upstream.User.Password()
	credentials := base64.StdEncoding.EncodeToString(
		[]byte(upstream.User.Username() + ":" + password))

	// Upstream address without the userinfo; the header carries the secret.
	bare := *upstream
	bare.User = nil

	proxy := goproxy.NewProxyHttpServer()

	// Plain HTTP requests ride the transport; net/http derives the
	// Proxy-Authorization header from the URL's userinfo itself.
	proxy.Tr = &http.Transport{
		Proxy:               http.ProxyURL(upstream),
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	// CONNECT tunnels need the header set on the CONNECT request explicitly.
	proxy.ConnectDial = proxy.NewConnectDialToProxyWithHandler(bare.String(), func(req *http.Request) {
		req.Header.Set("Proxy-Authorization", "Basic "+credentials)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listening for relay: %w", err)
	}

	server := &http.Server{Handler: proxy}
	go func() {
		if serveErr := server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Error("Relay server stopped unexpectedly.", zap.Error(serveErr))
		}
	}()

	addr := ln.Addr().String()
	log.Debug("Proxy relay listening.",
		zap.String("addr", addr),
		zap.String("upstream", bare.Redacted()))

	stop := func() {
		if err := server.Close(); err != nil {
			log.Warn("Relay shutdown error.", zap.Error(err))
		}
	}
	return addr, stop, nil
}
