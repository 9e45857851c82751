package chromedp_browser

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/pkg/metrics"
)

func TestPlanForURLTemplate(t *testing.T) {
	p := &entity.Profile{
		Target:  entity.URLTemplateTarget{Template: "https://x.test/r/{code}"},
		Browser: entity.BrowserConfig{ResultSelector: "#result"},
	}

	pl, _, ok := planFor(p, "A B", "")
	require.True(t, ok)
	assert.Equal(t, "https://x.test/r/A%20B", pl.url)
	assert.Equal(t, "#result", pl.waitSelector)
	assert.False(t, pl.isForm())

	pl, _, ok = planFor(p, "A1", "https://override.test/{code}")
	require.True(t, ok)
	assert.Equal(t, "https://override.test/A1", pl.url)

	p.Target = entity.URLTemplateTarget{}
	_, reason, ok := planFor(p, "A1", "")
	assert.False(t, ok)
	assert.Equal(t, "missing URL template", reason)
}

func TestPlanForForm(t *testing.T) {
	p := &entity.Profile{
		Target: entity.FormTarget{
			URL:            "https://x.test/redeem",
			CodeSelector:   "#code",
			SubmitSelector: "button[type=submit]",
		},
		Browser: entity.BrowserConfig{ResultSelector: ".msg"},
	}

	pl, _, ok := planFor(p, "A1", "https://ignored.test/{code}")
	require.True(t, ok)
	assert.True(t, pl.isForm())
	assert.Equal(t, "https://x.test/redeem", pl.url)
	assert.Equal(t, "A1", pl.code)
	assert.Equal(t, ".msg", pl.waitSelector, "result selector is the fallback wait target")

	p.Target = entity.FormTarget{URL: "https://x.test/redeem", CodeSelector: "#code", SubmitSelector: "#go", WaitForSelector: "#done"}
	pl, _, _ = planFor(p, "A1", "")
	assert.Equal(t, "#done", pl.waitSelector)

	p.Target = entity.FormTarget{URL: "https://x.test/redeem", CodeSelector: "#code"}
	_, reason, ok := planFor(p, "A1", "")
	assert.False(t, ok)
	assert.Equal(t, "missing form settings", reason)
}

func TestValidateWithoutSettingsSkipsNavigation(t *testing.T) {
	s := &session{
		launcher: NewLauncher(zap.NewNop(), metrics.New(prometheus.NewRegistry())),
		profile:  &entity.Profile{Target: entity.FormTarget{URL: "https://x.test"}},
	}

	out := s.Validate(context.Background(), "A1", "")
	assert.Equal(t, entity.ResultUnknown, out.Status)
	assert.Equal(t, entity.SourceBrowser, out.Source)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, "browser stage skipped by profile configuration: missing form settings", out.Reason())
}

func TestExtractResultText(t *testing.T) {
	html := `<html><body><div class="msg"> Code accepted </div><div class="msg">second</div></body></html>`

	assert.Equal(t, "Code accepted", extractResultText(html, ".msg"))
	assert.Equal(t, "", extractResultText(html, "#missing"))
	assert.Equal(t, "", extractResultText(html, ""))
	assert.Equal(t, "", extractResultText(html, "[[invalid"))
}

func TestFailureFor(t *testing.T) {
	tests := []struct {
		err  error
		kind entity.FailureKind
		want entity.FailureKind
	}{
		{errors.New("page load error net::ERR_CONNECTION_REFUSED"), entity.FailureNavigationTimeout, entity.FailureTransportRefused},
		{errors.New("page load error net::ERR_TIMED_OUT"), entity.FailureNavigationTimeout, entity.FailureTransportTimeout},
		{errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), entity.FailureNavigationTimeout, entity.FailureTransportOther},
		{context.DeadlineExceeded, entity.FailureNavigationTimeout, entity.FailureNavigationTimeout},
		{context.DeadlineExceeded, entity.FailureElementNotFound, entity.FailureElementNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureFor(tt.err, tt.kind), tt.err.Error())
	}
}

// TestBrowserEndToEnd drives a real Chrome. It runs only when
// CHROME_TESTS is set.
func TestBrowserEndToEnd(t *testing.T) {
	if os.Getenv("CHROME_TESTS") == "" {
		t.Skip("set CHROME_TESTS=1 to run browser tests")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/form":
			_, _ = io.WriteString(w, `<html><body><form action="/submit"><input id="code" name="code"><button id="go">Go</button></form></body></html>`)
		case "/submit":
			if r.URL.Query().Get("code") == "GOOD" {
				_, _ = io.WriteString(w, `<html><body><p id="result">Code redeemed</p></body></html>`)
				return
			}
			_, _ = io.WriteString(w, `<html><body><p id="result">Code expired</p></body></html>`)
		}
	}))
	defer srv.Close()

	p := &entity.Profile{
		Name:   "e2e",
		Target: entity.FormTarget{URL: srv.URL + "/form", CodeSelector: "#code", SubmitSelector: "#go"},
		Browser: entity.BrowserConfig{
			Enabled:          true,
			Headless:         true,
			Timeout:          20 * time.Second,
			ResultSelector:   "#result",
			StorageStatePath: t.TempDir() + "/none.json",
			SuccessTextAny:   []string{"redeemed"},
			FailureTextAny:   []string{"expired"},
		},
	}

	l := NewLauncher(zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	sess, err := l.Launch(context.Background(), p)
	require.NoError(t, err)
	defer sess.Close()

	good := sess.Validate(context.Background(), "GOOD", "")
	assert.Equal(t, entity.ResultValid, good.Status, good.Reason())

	bad := sess.Validate(context.Background(), "BAD", "")
	assert.Equal(t, entity.ResultInvalid, bad.Status, bad.Reason())
}
