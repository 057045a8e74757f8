// internal/solver/solver.go
package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/clearance-cli/internal/config"
	"github.com/xkilldash9x/clearance-cli/internal/cookies"
	"github.com/xkilldash9x/clearance-cli/internal/detect"
	"github.com/xkilldash9x/clearance-cli/internal/useragent"
)

// Widget is the clickable challenge element as seen by the solve loop.
type Widget interface {
	// Hidden reports whether the element is currently styled invisible.
	Hidden() bool
}

// Driver is the narrow browser surface the solve loop runs against.
// *browser.Session satisfies it through its adapter; tests substitute fakes.
type Driver interface {
	Navigate(ctx context.Context, target string, timeout time.Duration) error
	Cookies(ctx context.Context) ([]*network.Cookie, error)
	PageHTML(ctx context.Context) (string, error)
	UserAgent(ctx context.Context) (string, error)
	ApplyIdentity(ctx context.Context, ua string, md useragent.Metadata) error
	LocateWidget(ctx context.Context) (Widget, error)
	ClickWidget(ctx context.Context, w Widget) error
}

// Outcome is the terminal state of one solve attempt.
type Outcome int

const (
	// OutcomeCleared means a clearance cookie was obtained (or already held).
	OutcomeCleared Outcome = iota + 1
	// OutcomeNoChallenge means the page never presented a challenge.
	OutcomeNoChallenge
	// OutcomeUnresolved means the challenge page went away without issuing
	// a clearance cookie.
	OutcomeUnresolved
	// OutcomeTimedOut means the deadline elapsed with the challenge still up.
	OutcomeTimedOut
)

// String returns a short human-readable label for logs and output.
func (o Outcome) String() string {
	switch o {
	case OutcomeCleared:
		return "cleared"
	case OutcomeNoChallenge:
		return "no_challenge"
	case OutcomeUnresolved:
		return "unresolved"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result captures everything one solve attempt produced.
type Result struct {
	Outcome   Outcome
	Platform  detect.Platform
	Clearance *network.Cookie
	Cookies   []*network.Cookie
	UserAgent string
	Elapsed   time.Duration
}

// Solver drives a browser session through a challenge page until a clearance
// cookie appears or the attempt is abandoned.
type Solver struct {
	driver Driver
	cfg    config.SolverConfig
	logger *zap.Logger
}

// New returns a Solver over the given driver.
func New(driver Driver, cfg config.SolverConfig, logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{driver: driver, cfg: cfg, logger: logger}
}

// Solve navigates to target and runs the polling loop. It returns a Result
// for every terminal outcome; the error return is reserved for transport
// failures and context cancellation.
func (s *Solver) Solve(ctx context.Context, target string) (*Result, error) {
	start := time.Now()
	log := s.logger.With(zap.String("target", target))

	if err := s.driver.Navigate(ctx, target, s.cfg.Timeout); err != nil {
		return nil, fmt.Errorf("loading target page: %w", err)
	}

	finish := func(outcome Outcome, platform detect.Platform, clearance *network.Cookie, all []*network.Cookie) (*Result, error) {
		ua, err := s.driver.UserAgent(ctx)
		if err != nil {
			log.Warn("Could not read final user agent.", zap.Error(err))
		}
		return &Result{
			Outcome:   outcome,
			Platform:  platform,
			Clearance: clearance,
			Cookies:   all,
			UserAgent: ua,
			Elapsed:   time.Since(start),
		}, nil
	}

	// A clearance cookie from an earlier session settles the attempt before
	// any markup is inspected.
	all, err := s.driver.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	if clearance := cookies.ExtractClearance(all); clearance != nil {
		log.Info("Clearance cookie already present.")
		return finish(OutcomeCleared, 0, clearance, all)
	}

	markup, err := s.driver.PageHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading page markup: %w", err)
	}
	platform, present := detect.Classify(markup)
	if !present {
		log.Info("No challenge on page.")
		return finish(OutcomeNoChallenge, 0, nil, all)
	}
	s.logChallenge(log, platform, markup)

	// Align the client-hint fingerprint with the presented user agent before
	// touching the page. A non-Chrome identity has no derivable metadata and
	// is left as-is.
	if ua, uaErr := s.driver.UserAgent(ctx); uaErr == nil {
		if md, mdErr := useragent.Derive(ua); mdErr == nil {
			if err := s.driver.ApplyIdentity(ctx, ua, md); err != nil {
				return nil, fmt.Errorf("aligning identity: %w", err)
			}
		} else {
			log.Warn("Identity metadata not derivable, leaving defaults.",
				zap.String("user_agent", ua), zap.Error(mdErr))
		}
	} else {
		log.Warn("Could not read user agent.", zap.Error(uaErr))
	}

	limiter := rate.NewLimiter(rate.Every(s.cfg.MinLoopInterval), 1)

	// The timeout budgets the polling loop alone, so a slow initial page load
	// cannot eat into it.
	deadline := time.Now().Add(s.cfg.Timeout)

	for {
		if time.Now().After(deadline) {
			log.Warn("Challenge not cleared before deadline.",
				zap.Duration("timeout", s.cfg.Timeout))
			return finish(OutcomeTimedOut, platform, nil, all)
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		all, err = s.driver.Cookies(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading cookies: %w", err)
		}
		if clearance := cookies.ExtractClearance(all); clearance != nil {
			log.Info("Challenge cleared.",
				zap.Duration("elapsed", time.Since(start)),
				zap.String("challenge_platform", platform.String()))
			return finish(OutcomeCleared, platform, clearance, all)
		}

		markup, err = s.driver.PageHTML(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading page markup: %w", err)
		}
		if _, present = detect.Classify(markup); !present {
			log.Warn("Challenge page gone but no clearance cookie issued.")
			return finish(OutcomeUnresolved, platform, nil, all)
		}

		widget, locErr := s.driver.LocateWidget(ctx)
		if locErr != nil {
			// The widget's shadow tree attaches late; back off and re-scan.
			if err := sleepWithContext(ctx, s.cfg.DebounceInterval); err != nil {
				return nil, err
			}
			continue
		}
		if widget.Hidden() {
			continue
		}

		// Give the newly revealed widget time to finish rendering before the
		// click lands.
		if err := sleepWithContext(ctx, s.cfg.SettleWait); err != nil {
			return nil, err
		}
		if err := s.driver.ClickWidget(ctx, widget); err != nil {
			// The element may have detached between locate and click.
			log.Debug("Widget click failed, re-scanning.", zap.Error(err))
			continue
		}
		log.Debug("Challenge widget clicked.")
	}
}

// logChallenge emits one line naming the kind of challenge found.
func (s *Solver) logChallenge(log *zap.Logger, platform detect.Platform, markup string) {
	fields := []zap.Field{
		zap.String("page_title", detect.Title(markup)),
		zap.Int("marker_table", detect.TableVersion()),
	}
	switch platform {
	case detect.PlatformScriptOnly:
		log.Info("Script-only challenge detected, waiting it out.", fields...)
	case detect.PlatformManaged:
		log.Info("Managed challenge detected, may require interaction.", fields...)
	case detect.PlatformInteractive:
		log.Info("Interactive challenge detected, interaction required.", fields...)
	}
}

// sleepWithContext pauses for d unless the context is canceled first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
