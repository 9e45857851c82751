// Package profile normalizes target-service profiles and loads them from
// YAML files.
package profile

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/redeem-checker/internal/entity"
)

// DefaultBlockedKeywords are merged into every profile's blocked rules.
var DefaultBlockedKeywords = []string{
	"captcha",
	"verify you are human",
	"are you human",
	"attention required",
	"cloudflare",
	"security check",
	"access denied",
}

const (
	defaultURLTemplate     = "https://example.com/redeem?code={code}"
	defaultHTTPTimeout     = 20 // seconds
	minHTTPTimeout         = 1
	defaultBrowserTimeout  = 45000 // ms
	minBrowserTimeout      = 1000
	defaultWaitAfterSubmit = 2000 // ms
	defaultCodeField       = "code"
)

// Parse decodes and normalizes a profile document. fallbackName is used
// when the document has no name; relative session-state paths are resolved
// against baseDir.
func Parse(data []byte, fallbackName, baseDir string) (*entity.Profile, error) {
	var raw RawProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return Normalize(raw, fallbackName, baseDir), nil
}

// Normalize applies defaults and builds the typed profile.
func Normalize(raw RawProfile, fallbackName, baseDir string) *entity.Profile {
	name := raw.Name.or("")
	if name == "" {
		name = fallbackName
	}

	p := &entity.Profile{
		Name:        name,
		Description: raw.Description.or(""),
		HTTP:        normalizeHTTP(raw.HTTP),
		Browser:     normalizeBrowser(raw.Browser, name, baseDir),
	}

	switch entity.Mode(strings.ToLower(raw.Mode.or(""))) {
	case entity.ModeForm:
		p.Target = entity.FormTarget{
			URL:             raw.Form.URL.or(""),
			CodeSelector:    raw.Form.CodeSelector.or(""),
			SubmitSelector:  raw.Form.SubmitSelector.or(""),
			WaitForSelector: raw.Form.WaitForSelector.or(""),
		}
	default:
		template := raw.URLTemplate.or("")
		if template == "" {
			template = defaultURLTemplate
		}
		p.Target = entity.URLTemplateTarget{Template: template}
	}
	return p
}

func normalizeHTTP(raw rawHTTP) entity.HTTPConfig {
	blocked := normalizeRule(raw.Blocked)
	blocked.BodyContainsAny = dedupe(append(blocked.BodyContainsAny, DefaultBlockedKeywords...))

	codeField := raw.CodeField.or(defaultCodeField)
	if codeField == "" {
		codeField = defaultCodeField
	}

	headers := map[string]string(raw.Headers)
	if headers == nil {
		headers = map[string]string{}
	}

	return entity.HTTPConfig{
		Enabled:   raw.Enabled.or(true),
		Method:    strings.ToUpper(raw.Method.or("GET")),
		Timeout:   time.Duration(raw.TimeoutSeconds.orMin(defaultHTTPTimeout, minHTTPTimeout)) * time.Second,
		Headers:   headers,
		PostURL:   raw.PostURL.or(""),
		CodeField: codeField,
		Rules: entity.RuleSet{
			Blocked: blocked,
			Success: normalizeRule(raw.Success),
			Failure: normalizeRule(raw.Failure),
		},
	}
}

func normalizeBrowser(raw rawBrowser, name, baseDir string) entity.BrowserConfig {
	return entity.BrowserConfig{
		Enabled:          raw.Enabled.or(true),
		Headless:         raw.Headless.or(true),
		LoginRequired:    raw.LoginRequired.or(false),
		Timeout:          time.Duration(raw.TimeoutMS.orMin(defaultBrowserTimeout, minBrowserTimeout)) * time.Millisecond,
		WaitAfterSubmit:  time.Duration(raw.WaitAfterSubmitMS.orMin(defaultWaitAfterSubmit, 0)) * time.Millisecond,
		ResultSelector:   raw.ResultSelector.or(""),
		StorageStatePath: resolveStatePath(raw.StorageStatePath.or(""), name, baseDir),
		SuccessTextAny:   []string(raw.SuccessTextAny),
		FailureTextAny:   []string(raw.FailureTextAny),
		BlockedTextAny:   dedupe(append([]string(raw.BlockedTextAny), DefaultBlockedKeywords...)),
	}
}

func normalizeRule(raw rawRule) entity.Rule {
	return entity.Rule{
		StatusCodes:     []int(raw.StatusCodes),
		BodyContainsAny: []string(raw.BodyContainsAny),
		URLContainsAny:  []string(raw.URLContainsAny),
	}
}

// resolveStatePath defaults to sessions/<name>.json under baseDir.
func resolveStatePath(configured, name, baseDir string) string {
	path := configured
	if path == "" {
		path = filepath.Join("sessions", name+".json")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	abs, err := filepath.Abs(filepath.Join(baseDir, path))
	if err != nil {
		return filepath.Join(baseDir, path)
	}
	return abs
}

// dedupe drops empty and case-insensitively repeated items, keeping the
// first spelling.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
