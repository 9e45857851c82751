package httpstage

import (
	"net/url"
	"strings"

	"github.com/user/redeem-checker/internal/entity"
)

// Request is a rendered HTTP request for one code.
type Request struct {
	Method string
	URL    string
	Form   url.Values // sent form-encoded when non-nil
}

// EscapeCode percent-encodes every byte outside the unreserved set.
func EscapeCode(code string) string {
	return strings.ReplaceAll(url.QueryEscape(code), "+", "%20")
}

// RenderCodeURL substitutes the escaped code into the template, or appends
// it as a code query parameter when the template has no placeholder.
func RenderCodeURL(template, code string) string {
	escaped := EscapeCode(code)
	if strings.Contains(template, entity.CodePlaceholder) {
		return strings.ReplaceAll(template, entity.CodePlaceholder, escaped)
	}
	sep := "?"
	if strings.Contains(template, "?") {
		sep = "&"
	}
	return template + sep + "code=" + escaped
}

// BuildRequest renders the request for code. It reports false when the
// stage is disabled or no target resolves.
func BuildRequest(p *entity.Profile, code, urlOverride string) (Request, bool) {
	if !p.HTTP.Enabled {
		return Request{}, false
	}
	method := p.HTTP.Method
	if method == "" {
		method = "GET"
	}

	switch t := p.Target.(type) {
	case entity.FormTarget:
		target := strings.TrimSpace(p.HTTP.PostURL)
		if target == "" {
			target = strings.TrimSpace(t.URL)
		}
		if target == "" {
			return Request{}, false
		}
		values := url.Values{p.HTTP.CodeField: []string{code}}
		if method != "GET" {
			return Request{Method: method, URL: target, Form: values}, true
		}
		u, err := url.Parse(target)
		if err != nil {
			return Request{}, false
		}
		q := u.Query()
		q.Set(p.HTTP.CodeField, code)
		u.RawQuery = q.Encode()
		return Request{Method: method, URL: u.String()}, true
	default:
		template := strings.TrimSpace(urlOverride)
		if template == "" {
			template = strings.TrimSpace(p.URLTemplate())
		}
		if template == "" {
			return Request{}, false
		}
		return Request{Method: method, URL: RenderCodeURL(template, code)}, true
	}
}
