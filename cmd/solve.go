// -- cmd/solve.go --
package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/clearance-cli/internal/browser"
	"github.com/xkilldash9x/clearance-cli/internal/config"
	"github.com/xkilldash9x/clearance-cli/internal/cookies"
	"github.com/xkilldash9x/clearance-cli/internal/observability"
	"github.com/xkilldash9x/clearance-cli/internal/solver"
	"github.com/xkilldash9x/clearance-cli/internal/useragent"
)

// outputOptions carries the presentation flags of one solve invocation.
type outputOptions struct {
	allCookies bool
	curl       bool
	wget       bool
	aria2      bool
}

// newSolveCmd creates and configures the `solve` command.
func newSolveCmd() *cobra.Command {
	var (
		disableHTTP2  bool
		disableHTTP3  bool
		headed        bool
		save          bool
		refreshAgents bool
		parallel      int
		out           outputOptions
	)

	solveCmd := &cobra.Command{
		Use:   "solve [urls...]",
		Short: "Solves the Cloudflare challenge on each URL and collects the clearance cookie",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so command-line values override
			// the config file and environment with the right precedence.
			bindings := map[string]string{
				"browser.remote_url":      "cdp",
				"browser.proxy_url":       "proxy",
				"browser.executable_path": "browser-path",
				"browser.user_agent":      "user-agent",
				"solver.timeout":          "timeout",
				"solver.all_cookies":      "all-cookies",
				"store.file":              "file",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			// Boolean toggles invert between flag and config, so they are
			// applied by hand rather than bound.
			if headed {
				cfg.Browser.Headless = false
			}
			if disableHTTP2 {
				cfg.Browser.EnableHTTP2 = false
			}
			if disableHTTP3 {
				cfg.Browser.EnableHTTP3 = false
			}
			out.allCookies = cfg.Solver.AllCookies
			if err := cfg.Validate(); err != nil {
				return err
			}

			if cfg.Browser.UserAgent == "" {
				ua, err := pickUserAgent(ctx, refreshAgents, logger)
				if err != nil {
					return err
				}
				cfg.Browser.UserAgent = ua
			}

			var store *cookies.Store
			if save && cfg.Store.File == "" {
				path, err := config.DefaultStoreFile()
				if err != nil {
					return fmt.Errorf("resolving default store path: %w", err)
				}
				cfg.Store.File = path
			}
			if cfg.Store.File != "" {
				store = cookies.NewStore(cfg.Store.File, logger)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(parallel)
			for _, target := range args {
				g.Go(func() error {
					return runSolve(gctx, cmd, cfg, store, target, out, logger)
				})
			}
			return g.Wait()
		},
	}

	flags := solveCmd.Flags()
	flags.String("cdp", "", "devtools endpoint of a running browser (e.g. http://localhost:9222); omit to launch one")
	flags.StringP("file", "f", "", "file to append clearance cookie records to, in JSON format")
	flags.DurationP("timeout", "t", 30*time.Second, "timeout for solving each challenge")
	flags.StringP("proxy", "p", "", "proxy server URL for browser requests (launched browser only)")
	flags.String("browser-path", "", "path to the browser executable (e.g. /usr/bin/google-chrome)")
	flags.StringP("user-agent", "u", "", "user agent for browser requests (default: random desktop Chrome)")
	flags.BoolVar(&disableHTTP2, "disable-http2", false, "disable HTTP/2 for browser requests (launched browser only)")
	flags.BoolVar(&disableHTTP3, "disable-http3", false, "disable HTTP/3 for browser requests (launched browser only)")
	flags.BoolVar(&headed, "headed", false, "run the browser in headed mode (launched browser only)")
	flags.Bool("all-cookies", false, "collect every cookie from the page, not just the clearance cookie")
	flags.BoolVar(&save, "save", false, "append records to the default store file when --file is not set")
	flags.BoolVar(&refreshAgents, "refresh-agents", false, "refresh the user agent list from the network before picking one")
	flags.IntVar(&parallel, "parallel", 1, "number of URLs to solve concurrently")
	flags.BoolVarP(&out.curl, "curl", "c", false, "print the cURL command for the request with the cookies and user agent")
	flags.BoolVarP(&out.wget, "wget", "w", false, "print the Wget command for the request with the cookies and user agent")
	flags.BoolVarP(&out.aria2, "aria2", "a", false, "print the aria2 command for the request with the cookies and user agent")

	return solveCmd
}

// pickUserAgent selects a random desktop Chrome identity, optionally
// refreshing the pool from the published list first.
func pickUserAgent(ctx context.Context, refresh bool, logger *zap.Logger) (string, error) {
	pool, err := useragent.NewPool()
	if err != nil {
		return "", err
	}
	if refresh {
		if err := pool.Refresh(ctx, useragent.NewListClient(), useragent.DefaultListURL); err != nil {
			logger.Warn("User agent list refresh failed, keeping embedded snapshot.", zap.Error(err))
		}
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return pool.Pick(rng)
}

// runSolve drives one target through its own browser session.
func runSolve(ctx context.Context, cmd *cobra.Command, cfg *config.Config, store *cookies.Store, target string, out outputOptions, logger *zap.Logger) error {
	log := logger.With(zap.String("target", target))
	standalone := !cfg.Browser.Attach()

	if standalone {
		mode := "headless"
		if !cfg.Browser.Headless {
			mode = "headed"
		}
		log.Info("Launching browser.", zap.String("mode", mode))
	} else {
		log.Info("Connecting to browser devtools endpoint.",
			zap.String("endpoint", cfg.Browser.RemoteURL))
	}

	sess, err := browser.Open(ctx, cfg.Browser, logger)
	if err != nil {
		if !standalone {
			log.Error("Devtools connection failed. Make sure the browser is running with remote debugging enabled, e.g. chromium --remote-debugging-port=9222 --headless=new")
		}
		return err
	}
	defer sess.Close()

	res, err := solver.New(sess.Driver(), cfg.Solver, logger).Solve(ctx, target)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case solver.OutcomeCleared:
		// Fall through to reporting below.
	case solver.OutcomeNoChallenge:
		return nil
	default:
		return fmt.Errorf("no clearance cookie retrieved for %s (%s)", target, res.Outcome)
	}

	selected := []*network.Cookie{res.Clearance}
	if out.allCookies {
		selected = res.Cookies
	}
	header := cookieHeader(selected)
	log.Info("Clearance cookie retrieved.",
		zap.String("cookie", header),
		zap.String("user_agent", res.UserAgent))

	proxy := ""
	if standalone {
		proxy = cfg.Browser.ProxyURL
	}
	if out.curl {
		fmt.Fprintln(cmd.OutOrStdout(),
			formatFetchCommand("cURL", "curl", header, res.UserAgent, curlURLArg(target, proxy, standalone)))
	}
	if out.wget {
		if proxy != "" {
			log.Warn("Proxies must be set in an environment variable or config file for Wget.")
		}
		fmt.Fprintln(cmd.OutOrStdout(),
			formatFetchCommand("Wget", "wget", header, res.UserAgent, target))
	}
	if out.aria2 {
		if aria2ProxyUnsupported(proxy) {
			log.Warn("SOCKS proxies are not supported by aria2.")
		}
		fmt.Fprintln(cmd.OutOrStdout(),
			formatFetchCommand("aria2", "aria2c", header, res.UserAgent, aria2URLArg(target, proxy, standalone)))
	}

	if store != nil {
		rec := cookies.NewRecord(res.Clearance, res.Cookies, res.UserAgent, proxy)
		if err := store.Append(res.Clearance.Domain, rec); err != nil {
			return fmt.Errorf("storing clearance record: %w", err)
		}
		log.Info("Clearance record stored.", zap.String("file", store.Path()))
	}
	return nil
}
