// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clearance-cli/internal/config"
	"github.com/xkilldash9x/clearance-cli/internal/useragent"
)

var (
	// ErrLaunch indicates the managed browser process could not be started.
	ErrLaunch = errors.New("browser: launch failed")
	// ErrConnect indicates the remote debugging endpoint could not be reached.
	ErrConnect = errors.New("browser: connect failed")
	// ErrNavigationTimeout indicates the page did not become ready in time.
	ErrNavigationTimeout = errors.New("browser: navigation timed out")
)

// Session represents one remote-controlled browser tab, either launched
// locally or attached over an existing remote debugging endpoint.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	locator WidgetLocator

	allocCancel context.CancelFunc
	relayStop   func()

	closeOnce sync.Once
}

// Open launches (or attaches to) a browser and returns a connected Session.
// The supplied context bounds the connection attempt and the lifetime of the
// session; callers must Close the session when done.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	s := &Session{
		id:      uuid.New().String(),
		cfg:     cfg,
		locator: NewShadowChildLocator("input"),
	}
	s.logger = logger.With(zap.String("session_id", s.id))

	var err error
	if cfg.Attach() {
		err = s.attach(ctx)
	} else {
		err = s.launch(ctx)
	}
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// launch starts a locally managed browser process.
func (s *Session) launch(ctx context.Context) error {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if s.cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecutablePath))
	}
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}
	if !s.cfg.EnableHTTP2 {
		opts = append(opts, chromedp.Flag("disable-http2", true))
	}
	if !s.cfg.EnableHTTP3 {
		opts = append(opts, chromedp.Flag("disable-quic", true))
	}

	if s.cfg.ProxyURL != "" {
		server, err := s.resolveProxyServer(s.cfg.ProxyURL)
		if err != nil {
			return err
		}
		opts = append(opts, chromedp.ProxyServer(server))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	s.allocCancel = allocCancel

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	s.ctx = browserCtx
	s.cancel = cancel

	// Force the process to start and the first target to attach.
	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	s.logger.Info("Browser launched.",
		zap.Bool("headless", s.cfg.Headless),
		zap.Bool("proxied", s.cfg.ProxyURL != ""))
	return nil
}

// attach connects to an already running browser over its debugging endpoint.
func (s *Session) attach(ctx context.Context) error {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, s.cfg.RemoteURL)
	s.allocCancel = allocCancel

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	s.ctx = browserCtx
	s.cancel = cancel

	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnect, s.cfg.RemoteURL, err)
	}

	// Launch flags are out of reach for a foreign process, so the
	// script-visible identity is patched before any document runs.
	if s.cfg.UserAgent != "" {
		script := fmt.Sprintf(
			`Object.defineProperty(navigator, "userAgent", {get: () => %q});`,
			s.cfg.UserAgent)
		err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
		if err != nil {
			return fmt.Errorf("%w: user agent injection: %v", ErrConnect, err)
		}
	}
	s.logger.Info("Attached to remote browser.", zap.String("endpoint", s.cfg.RemoteURL))
	return nil
}

// resolveProxyServer returns the --proxy-server value for the configured
// upstream. Credentialed upstreams are reached through a local relay because
// the browser flag carries no authority component.
func (s *Session) resolveProxyServer(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing proxy url: %w", err)
	}
	if u.User == nil {
		return raw, nil
	}

	addr, stop, err := StartRelay(u, s.logger)
	if err != nil {
		return "", fmt.Errorf("starting proxy relay: %w", err)
	}
	s.relayStop = stop
	s.logger.Debug("Credentialed proxy routed through local relay.",
		zap.String("relay_addr", addr))
	return "http://" + addr, nil
}

// Navigate loads the target URL and waits for the document body to be ready.
func (s *Session) Navigate(ctx context.Context, target string, timeout time.Duration) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()
	if timeout > 0 {
		var tCancel context.CancelFunc
		opCtx, tCancel = context.WithTimeout(opCtx, timeout)
		defer tCancel()
	}

	err := chromedp.Run(opCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrNavigationTimeout, target)
		}
		return fmt.Errorf("navigating to %s: %w", target, err)
	}
	return nil
}

// Cookies returns a point-in-time snapshot of every cookie the browser holds.
func (s *Session) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	var cookies []*network.Cookie
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	return cookies, nil
}

// PageHTML returns the serialized markup of the current document.
func (s *Session) PageHTML(ctx context.Context) (string, error) {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page markup: %w", err)
	}
	return html, nil
}

// Evaluate runs a script in the page and unmarshals the result into res.
// Pass a nil res to discard the result.
func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, res)); err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}
	return nil
}

// UserAgent reads the identity the page scripts currently observe.
func (s *Session) UserAgent(ctx context.Context) (string, error) {
	var ua string
	if err := s.Evaluate(ctx, "navigator.userAgent", &ua); err != nil {
		return "", err
	}
	return strings.TrimSpace(ua), nil
}

// ApplyIdentity overrides the network-visible user agent together with its
// client-hint metadata in a single devtools command, so the two surfaces can
// never be observed out of step.
func (s *Session) ApplyIdentity(ctx context.Context, ua string, md useragent.Metadata) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulationOverride(ua, md).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("applying identity override: %w", err)
	}
	s.logger.Debug("Identity override applied.", zap.String("user_agent", ua))
	return nil
}

// LocateWidget finds the challenge widget in the current document using the
// session's configured locator.
func (s *Session) LocateWidget(ctx context.Context) (*Widget, error) {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()
	return s.locator.Locate(opCtx)
}

// ClickWidget dispatches a synthesized primary-button click at the center of
// the widget's content box.
func (s *Session) ClickWidget(ctx context.Context, w *Widget) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()
	return w.ClickCenter(opCtx)
}

// ID returns the unique identifier assigned to this session.
func (s *Session) ID() string { return s.id }

// Close tears down the tab, the allocator and any helper relay. Safe to call
// more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
		if s.relayStop != nil {
			s.relayStop()
		}
		if s.logger != nil {
			s.logger.Debug("Session closed.")
		}
	})
}

// CombineContext derives a context that is canceled when either parent is.
// chromedp operations must run on the session context to reach the target,
// while callers still need their own deadlines respected.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
