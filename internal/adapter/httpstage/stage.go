package httpstage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/classifier"
	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/profile"
	"github.com/user/redeem-checker/internal/repository"
	"github.com/user/redeem-checker/pkg/metrics"
)

// DefaultUserAgent is sent unless a profile sets its own.
const DefaultUserAgent = "Mozilla/5.0 RedeemChecker/1.0"

// Stage builds per-profile HTTP probers.
type Stage struct {
	policy  RetryPolicy
	logger  *zap.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewStage creates the HTTP validation stage.
func NewStage(policy RetryPolicy, logger *zap.Logger, m *metrics.Metrics) *Stage {
	return &Stage{
		policy:  policy,
		logger:  logger,
		metrics: m,
		sleep:   sleepContext,
	}
}

// NewProber returns a prober bound to p. The prober's client carries the
// cookies of the profile's storage state.
func (s *Stage) NewProber(p *entity.Profile) repository.HTTPProber {
	client := &http.Client{Timeout: p.HTTP.Timeout}

	cookies, err := profile.LoadSessionCookies(p.Browser.StorageStatePath)
	if err != nil {
		s.logger.Warn("Ignoring unreadable session state",
			zap.String("profile", p.Name),
			zap.Error(err),
		)
	}
	if len(cookies) > 0 {
		client.Jar = newJar(cookies, targetHost(p))
	}

	return &prober{
		stage:   s,
		profile: p,
		client:  client,
	}
}

type prober struct {
	stage   *Stage
	profile *entity.Profile
	client  *http.Client
}

// Validate probes one code, retrying transient outcomes up to maxRetries
// additional times.
func (p *prober) Validate(ctx context.Context, code, urlOverride string, maxRetries, delayMS int) entity.Outcome {
	req, ok := BuildRequest(p.profile, code, urlOverride)
	if !ok {
		return entity.Skipped(entity.SourceHTTP, "no usable request target")
	}

	start := time.Now()
	total := max(1, maxRetries+1)
	var last entity.Outcome
	for attempt := 1; attempt <= total; attempt++ {
		if delayMS > 0 {
			if err := p.stage.sleep(ctx, Jitter(delayMS)); err != nil {
				return entity.Failed(entity.SourceHTTP, entity.FailureInternal, "cancelled", attempt-1)
			}
		}

		last = p.attempt(ctx, req, attempt)
		if attempt == total || !p.stage.policy.Retryable(last) {
			break
		}

		p.stage.logger.Debug("Retrying HTTP probe",
			zap.String("profile", p.profile.Name),
			zap.Int("attempt", attempt),
			zap.String("status", string(last.Status)),
			zap.Int("http_status", last.HTTPStatus),
		)
		if err := p.stage.sleep(ctx, p.stage.policy.Backoff(attempt)); err != nil {
			return last
		}
	}

	p.stage.metrics.ObserveValidation(string(entity.SourceHTTP), string(last.Status), time.Since(start))
	return last
}

func (p *prober) attempt(ctx context.Context, r Request, attempt int) entity.Outcome {
	var body io.Reader
	if r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return entity.Failed(entity.SourceHTTP, entity.FailureParse, err.Error(), attempt)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	for k, v := range p.profile.HTTP.Headers {
		req.Header.Set(k, v)
	}
	if r.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		kind := transportFailure(err)
		p.stage.metrics.HTTPAttemptsTotal.WithLabelValues(string(kind)).Inc()
		return entity.Failed(entity.SourceHTTP, kind, unwrapDetail(err), attempt)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, classifier.MaxBodyLength))
	if err != nil {
		kind := transportFailure(err)
		p.stage.metrics.HTTPAttemptsTotal.WithLabelValues(string(kind)).Inc()
		return entity.Failed(entity.SourceHTTP, kind, fmt.Sprintf("reading body: %v", err), attempt)
	}
	p.stage.metrics.HTTPAttemptsTotal.WithLabelValues("none").Inc()

	finalURL := r.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	verdict := classifier.Classify(p.profile.HTTP.Rules, resp.StatusCode, string(data), finalURL)
	return entity.Outcome{
		Status:      verdict.Status,
		Source:      entity.SourceHTTP,
		Verdict:     verdict.Reason,
		Matched:     verdict.Matched,
		Captcha:     verdict.Captcha,
		Attempts:    attempt,
		HTTPStatus:  resp.StatusCode,
		RedirectURL: finalURL,
	}
}

func transportFailure(err error) entity.FailureKind {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return entity.FailureTransportTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return entity.FailureTransportTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return entity.FailureTransportRefused
	default:
		return entity.FailureTransportOther
	}
}

// unwrapDetail drops the method and URL prefix that *url.Error adds.
func unwrapDetail(err error) string {
	var u *url.Error
	if errors.As(err, &u) {
		return u.Err.Error()
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
