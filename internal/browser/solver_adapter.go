// internal/browser/solver_adapter.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/xkilldash9x/clearance-cli/internal/solver"
	"github.com/xkilldash9x/clearance-cli/internal/useragent"
)

// Driver adapts the session to the solve loop's narrow browser surface.
func (s *Session) Driver() solver.Driver {
	return &sessionDriver{session: s}
}

type sessionDriver struct {
	session *Session
}

var _ solver.Driver = (*sessionDriver)(nil)

func (d *sessionDriver) Navigate(ctx context.Context, target string, timeout time.Duration) error {
	return d.session.Navigate(ctx, target, timeout)
}

func (d *sessionDriver) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	return d.session.Cookies(ctx)
}

func (d *sessionDriver) PageHTML(ctx context.Context) (string, error) {
	return d.session.PageHTML(ctx)
}

func (d *sessionDriver) UserAgent(ctx context.Context) (string, error) {
	return d.session.UserAgent(ctx)
}

func (d *sessionDriver) ApplyIdentity(ctx context.Context, ua string, md useragent.Metadata) error {
	return d.session.ApplyIdentity(ctx, ua, md)
}

func (d *sessionDriver) LocateWidget(ctx context.Context) (solver.Widget, error) {
	w, err := d.session.LocateWidget(ctx)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (d *sessionDriver) ClickWidget(ctx context.Context, w solver.Widget) error {
	concrete, ok := w.(*Widget)
	if !ok {
		return fmt.Errorf("browser: unexpected widget type %T", w)
	}
	return d.session.ClickWidget(ctx, concrete)
}
