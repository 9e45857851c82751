package httpstage

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/profile"
)

// newJar seeds a cookie jar from storage-state cookies. Cookies without a
// domain are bound to the profile's own target host.
func newJar(cookies []profile.SessionCookie, fallbackHost string) http.CookieJar {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil
	}
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			host = fallbackHost
		}
		if host == "" {
			continue
		}
		u := &url.URL{Scheme: "https", Host: host, Path: c.Path}
		jar.SetCookies(u, []*http.Cookie{{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: c.Domain,
		}})
	}
	return jar
}

// targetHost returns the hostname requests for p are sent to.
func targetHost(p *entity.Profile) string {
	req, ok := BuildRequest(p, "x", "")
	if !ok {
		return ""
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
