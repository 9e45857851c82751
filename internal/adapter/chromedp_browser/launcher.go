package chromedp_browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/adapter/httpstage"
	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/profile"
	"github.com/user/redeem-checker/internal/repository"
	"github.com/user/redeem-checker/pkg/metrics"
)

const userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36`

// Launcher starts one Chrome instance per browser worker.
type Launcher struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	// ExecPath overrides the Chrome binary lookup when set.
	ExecPath string
}

// NewLauncher creates the browser stage.
func NewLauncher(logger *zap.Logger, m *metrics.Metrics) *Launcher {
	return &Launcher{logger: logger, metrics: m}
}

// Launch starts a browser configured for p and injects the cookies of the
// profile's storage state. The browser lives until Close or until ctx is
// cancelled.
func (l *Launcher) Launch(ctx context.Context, p *entity.Profile) (repository.BrowserSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.Browser.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.logger.Sugar().Debugf))

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	cookies, err := profile.LoadSessionCookies(p.Browser.StorageStatePath)
	if err != nil {
		l.logger.Warn("Ignoring unreadable session state",
			zap.String("profile", p.Name),
			zap.Error(err),
		)
	}
	if len(cookies) > 0 {
		if err := chromedp.Run(browserCtx, injectCookies(cookies, cookieURL(p), l.logger)); err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("failed to inject session cookies: %w", err)
		}
	}

	l.logger.Debug("Browser started",
		zap.String("profile", p.Name),
		zap.Bool("headless", p.Browser.Headless),
		zap.Int("cookies", len(cookies)),
	)

	return &session{
		launcher:      l,
		profile:       p,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// injectCookies sets each cookie on the browser. Cookies without a domain
// are bound to fallbackURL.
func injectCookies(cookies []profile.SessionCookie, fallbackURL string, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		set := 0
		for _, c := range cookies {
			param := network.SetCookie(c.Name, c.Value).WithPath(c.Path)
			switch {
			case c.Domain != "":
				param = param.WithDomain(c.Domain)
			case fallbackURL != "":
				param = param.WithURL(fallbackURL)
			default:
				continue
			}
			if err := param.Do(ctx); err != nil {
				logger.Debug("Failed to set cookie", zap.String("cookie", c.Name), zap.Error(err))
				continue
			}
			set++
		}
		logger.Debug("Injected session cookies", zap.Int("set", set), zap.Int("total", len(cookies)))
		return nil
	})
}

func cookieURL(p *entity.Profile) string {
	if f, ok := p.Form(); ok {
		return f.URL
	}
	if t := p.URLTemplate(); t != "" {
		return httpstage.RenderCodeURL(t, "")
	}
	return ""
}
