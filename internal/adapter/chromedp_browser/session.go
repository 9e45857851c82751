package chromedp_browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/adapter/httpstage"
	"github.com/user/redeem-checker/internal/classifier"
	"github.com/user/redeem-checker/internal/entity"
)

const captureTimeout = 5 * time.Second

type session struct {
	launcher      *Launcher
	profile       *entity.Profile
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// plan is what a tab does for one code.
type plan struct {
	url            string
	code           string
	codeSelector   string
	submitSelector string
	waitSelector   string
}

func (p plan) isForm() bool { return p.codeSelector != "" }

// planFor resolves the navigation target for code. It reports false with
// the reason when the profile lacks the settings to drive a page.
func planFor(p *entity.Profile, code, urlOverride string) (plan, string, bool) {
	if f, ok := p.Form(); ok {
		target := strings.TrimSpace(f.URL)
		codeSel := strings.TrimSpace(f.CodeSelector)
		submitSel := strings.TrimSpace(f.SubmitSelector)
		if target == "" || codeSel == "" || submitSel == "" {
			return plan{}, "missing form settings", false
		}
		wait := strings.TrimSpace(f.WaitForSelector)
		if wait == "" {
			wait = strings.TrimSpace(p.Browser.ResultSelector)
		}
		return plan{url: target, code: code, codeSelector: codeSel, submitSelector: submitSel, waitSelector: wait}, "", true
	}

	template := strings.TrimSpace(urlOverride)
	if template == "" {
		template = strings.TrimSpace(p.URLTemplate())
	}
	if template == "" {
		return plan{}, "missing URL template", false
	}
	return plan{
		url:          httpstage.RenderCodeURL(template, code),
		waitSelector: strings.TrimSpace(p.Browser.ResultSelector),
	}, "", true
}

// Validate renders the target page for code in a fresh tab and classifies
// what it shows.
func (s *session) Validate(ctx context.Context, code, urlOverride string) entity.Outcome {
	pl, reason, ok := planFor(s.profile, code, urlOverride)
	if !ok {
		out := entity.Skipped(entity.SourceBrowser, reason)
		out.Attempts = 1
		return out
	}

	start := time.Now()
	out := s.run(ctx, pl)
	s.launcher.metrics.ObserveValidation(string(entity.SourceBrowser), string(out.Status), time.Since(start))
	return out
}

func (s *session) run(ctx context.Context, pl plan) entity.Outcome {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	// The first Run opens the tab. It must not carry a deadline, or the
	// tab closes when the deadline passes.
	if err := chromedp.Run(tabCtx); err != nil {
		return entity.Failed(entity.SourceBrowser, entity.FailureSessionSetup, err.Error(), 1)
	}

	timeout := s.profile.Browser.Timeout
	if err := step(tabCtx, timeout, chromedp.Navigate(pl.url)); err != nil {
		return s.failure(err, entity.FailureNavigationTimeout)
	}

	if pl.isForm() {
		err := step(tabCtx, timeout,
			chromedp.WaitVisible(pl.codeSelector, chromedp.ByQuery),
			chromedp.SetValue(pl.codeSelector, "", chromedp.ByQuery),
			chromedp.SendKeys(pl.codeSelector, pl.code, chromedp.ByQuery),
			chromedp.Click(pl.submitSelector, chromedp.ByQuery),
		)
		if err != nil {
			return s.failure(err, entity.FailureElementNotFound)
		}
	}

	if pl.waitSelector != "" {
		// Best effort: a page that never shows the selector is still
		// classified from whatever it rendered.
		_ = step(tabCtx, timeout, chromedp.WaitVisible(pl.waitSelector, chromedp.ByQuery))
	}
	if wait := s.profile.Browser.WaitAfterSubmit; wait > 0 {
		if err := chromedp.Run(tabCtx, chromedp.Sleep(wait)); err != nil {
			return s.failure(err, entity.FailureInternal)
		}
	}

	var html, location string
	if err := step(tabCtx, captureTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	); err != nil {
		return s.failure(err, entity.FailureParse)
	}

	content := html
	if text := extractResultText(html, s.profile.Browser.ResultSelector); text != "" {
		content = text + "\n" + html
	}
	rules := classifier.BrowserRules(s.profile.HTTP.Rules, s.profile.Browser)
	verdict := classifier.ClassifyBrowser(rules, content, location)

	return entity.Outcome{
		Status:      verdict.Status,
		Source:      entity.SourceBrowser,
		Verdict:     verdict.Reason,
		Matched:     verdict.Matched,
		Captcha:     verdict.Captcha,
		Attempts:    1,
		RedirectURL: location,
	}
}

func (s *session) failure(err error, kind entity.FailureKind) entity.Outcome {
	k := failureFor(err, kind)
	s.launcher.logger.Debug("Browser validation failed",
		zap.String("profile", s.profile.Name),
		zap.String("failure", string(k)),
		zap.Error(err),
	)
	return entity.Failed(entity.SourceBrowser, k, err.Error(), 1)
}

// Close shuts the browser down.
func (s *session) Close() error {
	err := chromedp.Cancel(s.browserCtx)
	s.browserCancel()
	s.allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func step(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return chromedp.Run(ctx, actions...)
}

// failureFor maps a chromedp error to a failure kind. Network errors
// reported by the page keep their transport class; anything else is
// attributed to the step that produced it.
func failureFor(err error, stepKind entity.FailureKind) entity.FailureKind {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ERR_CONNECTION_REFUSED"):
		return entity.FailureTransportRefused
	case strings.Contains(msg, "ERR_TIMED_OUT"), strings.Contains(msg, "ERR_CONNECTION_TIMED_OUT"):
		return entity.FailureTransportTimeout
	case strings.Contains(msg, "net::ERR_"):
		return entity.FailureTransportOther
	default:
		return stepKind
	}
}

// extractResultText returns the text of the first element matching
// selector, or "" when the selector is empty or matches nothing.
func extractResultText(html, selector string) string {
	selector = strings.TrimSpace(selector)
	if selector == "" || html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}
