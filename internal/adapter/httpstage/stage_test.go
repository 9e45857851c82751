package httpstage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/pkg/metrics"
)

func testProfile(template string) *entity.Profile {
	return &entity.Profile{
		Name:   "shop",
		Target: entity.URLTemplateTarget{Template: template},
		HTTP: entity.HTTPConfig{
			Enabled:   true,
			Method:    "GET",
			Timeout:   5 * time.Second,
			CodeField: "code",
			Rules: entity.RuleSet{
				Blocked: entity.Rule{BodyContainsAny: []string{"captcha"}},
				Success: entity.Rule{BodyContainsAny: []string{"valid code"}},
				Failure: entity.Rule{BodyContainsAny: []string{"expired"}},
			},
		},
		Browser: entity.BrowserConfig{StorageStatePath: filepath.Join(os.TempDir(), "does-not-exist.json")},
	}
}

// newTestStage returns a stage whose sleeps are recorded instead of taken.
func newTestStage(policy RetryPolicy) (*Stage, *[]time.Duration) {
	s := NewStage(policy, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return s, &slept
}

func TestProbeClassifiesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		if r.URL.Query().Get("c") == "GOOD" {
			_, _ = io.WriteString(w, "Valid code, enjoy")
			return
		}
		_, _ = io.WriteString(w, "this code has expired")
	}))
	defer srv.Close()

	stage, _ := newTestStage(DefaultRetryPolicy())
	prober := stage.NewProber(testProfile(srv.URL + "/redeem?c={code}"))

	good := prober.Validate(context.Background(), "GOOD", "", 2, 0)
	assert.Equal(t, entity.ResultValid, good.Status)
	assert.Equal(t, entity.SourceHTTP, good.Source)
	assert.Equal(t, 1, good.Attempts)
	assert.Equal(t, http.StatusOK, good.HTTPStatus)
	assert.Contains(t, good.RedirectURL, "c=GOOD")

	bad := prober.Validate(context.Background(), "BAD", "", 2, 0)
	assert.Equal(t, entity.ResultInvalid, bad.Status)
	assert.Equal(t, 1, bad.Attempts)
}

func TestProbeRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	stage, slept := newTestStage(DefaultRetryPolicy())
	out := stage.NewProber(testProfile(srv.URL+"/{code}")).Validate(context.Background(), "A1", "", 2, 0)

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, entity.ResultUnknown, out.Status)
	assert.Equal(t, http.StatusServiceUnavailable, out.HTTPStatus)
	assert.Len(t, *slept, 2, "one backoff between each pair of attempts")
}

func TestProbeCaptchaIsTerminal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "please solve the CAPTCHA")
	}))
	defer srv.Close()

	stage, _ := newTestStage(DefaultRetryPolicy())
	out := stage.NewProber(testProfile(srv.URL+"/{code}")).Validate(context.Background(), "A1", "", 5, 0)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, entity.ResultBlocked, out.Status)
	assert.True(t, out.Captcha)
}

func TestCaptchaTerminalWhateverRuleMatched(t *testing.T) {
	cases := []struct {
		name    string
		blocked entity.Rule
	}{
		{"custom phrase listed first", entity.Rule{BodyContainsAny: []string{"access denied", "captcha"}}},
		{"status code rule", entity.Rule{StatusCodes: []int{http.StatusForbidden}, BodyContainsAny: []string{"captcha"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusForbidden)
				_, _ = io.WriteString(w, "Access denied. Please complete the CAPTCHA")
			}))
			defer srv.Close()

			p := testProfile(srv.URL + "/{code}")
			p.HTTP.Rules.Blocked = tc.blocked
			stage, _ := newTestStage(DefaultRetryPolicy())
			out := stage.NewProber(p).Validate(context.Background(), "A1", "", 3, 0)

			assert.Equal(t, int32(1), hits.Load())
			assert.Equal(t, 1, out.Attempts)
			assert.Equal(t, entity.ResultBlocked, out.Status)
			assert.NotContains(t, out.Matched, "captcha")
			assert.True(t, out.Captcha)
		})
	}
}

func TestProbeDelayBeforeEveryAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	policy := DefaultRetryPolicy()
	policy.MaxBackoff = time.Nanosecond
	stage, slept := newTestStage(policy)
	stage.NewProber(testProfile(srv.URL+"/{code}")).Validate(context.Background(), "A1", "", 1, 100)

	// delay, attempt 1, backoff, delay, attempt 2
	require.Len(t, *slept, 3)
	for _, d := range []time.Duration{(*slept)[0], (*slept)[2]} {
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
	assert.Equal(t, time.Nanosecond, (*slept)[1])
}

func TestProbeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	stage, _ := newTestStage(DefaultRetryPolicy())
	out := stage.NewProber(testProfile(addr+"/{code}")).Validate(context.Background(), "A1", "", 1, 0)

	assert.Equal(t, entity.ResultError, out.Status)
	assert.Equal(t, entity.FailureTransportRefused, out.Failure)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 0, out.HTTPStatus)
}

func TestProbeSkippedWithoutTarget(t *testing.T) {
	stage, _ := newTestStage(DefaultRetryPolicy())

	disabled := testProfile("https://example.test/{code}")
	disabled.HTTP.Enabled = false
	out := stage.NewProber(disabled).Validate(context.Background(), "A1", "", 2, 0)
	assert.Equal(t, entity.ResultUnknown, out.Status)
	assert.Equal(t, entity.FailureStageSkipped, out.Failure)
	assert.Equal(t, 0, out.Attempts)

	noTarget := testProfile("")
	out = stage.NewProber(noTarget).Validate(context.Background(), "A1", "", 2, 0)
	assert.Equal(t, entity.FailureStageSkipped, out.Failure)
}

func TestProbeFormPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("voucher") == "X 1" {
			_, _ = io.WriteString(w, "valid code")
			return
		}
		_, _ = io.WriteString(w, "nothing")
	}))
	defer srv.Close()

	p := testProfile("")
	p.Target = entity.FormTarget{URL: srv.URL + "/form"}
	p.HTTP.Method = "POST"
	p.HTTP.PostURL = srv.URL + "/api/redeem"
	p.HTTP.CodeField = "voucher"

	stage, _ := newTestStage(DefaultRetryPolicy())
	out := stage.NewProber(p).Validate(context.Background(), "X 1", "", 0, 0)
	assert.Equal(t, entity.ResultValid, out.Status)
	assert.Contains(t, out.RedirectURL, "/api/redeem")
}

func TestProbeSendsSessionCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("sid")
		if err == nil && c.Value == "abc" {
			_, _ = io.WriteString(w, "valid code")
			return
		}
		_, _ = io.WriteString(w, "expired")
	}))
	defer srv.Close()

	state := filepath.Join(t.TempDir(), "shop.json")
	require.NoError(t, os.WriteFile(state, []byte(`{"cookies":[{"name":"sid","value":"abc"}]}`), 0o644))

	p := testProfile(srv.URL + "/{code}")
	p.Browser.StorageStatePath = state

	stage, _ := newTestStage(DefaultRetryPolicy())
	out := stage.NewProber(p).Validate(context.Background(), "A1", "", 0, 0)
	assert.Equal(t, entity.ResultValid, out.Status)
}

func TestProbeCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stage, _ := newTestStage(DefaultRetryPolicy())
	out := stage.NewProber(testProfile("https://example.test/{code}")).Validate(ctx, "A1", "", 2, 50)
	assert.Equal(t, entity.ResultError, out.Status)
	assert.Equal(t, 0, out.Attempts)
}
