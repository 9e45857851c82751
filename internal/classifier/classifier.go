// Package classifier decides a verdict from observed response signals.
package classifier

import (
	"fmt"
	"slices"
	"strings"

	"github.com/user/redeem-checker/internal/entity"
)

// MaxBodyLength bounds how much of a response body is inspected.
const MaxBodyLength = 200_000

// captchaMarker flags a blocked response as a CAPTCHA challenge wherever
// it appears in the inspected text, whichever blocked condition matched.
const captchaMarker = "captcha"

// Result is a classification verdict.
type Result struct {
	Status entity.ResultStatus
	Reason string
	// Matched is the pattern that decided the verdict. For status-code
	// matches it is the code rendered as text.
	Matched string
	// Captcha is set on blocked verdicts whose text carries a CAPTCHA
	// challenge.
	Captcha bool
}

// Browser holds the text rules consulted against rendered pages.
type Browser struct {
	BlockedText []string
	SuccessText []string
	FailureText []string
	SuccessURL  []string
	FailureURL  []string
}

// BrowserRules combines the browser text lists with the HTTP body rules
// as a secondary source.
func BrowserRules(http entity.RuleSet, browser entity.BrowserConfig) Browser {
	return Browser{
		BlockedText: concat(browser.BlockedTextAny, http.Blocked.BodyContainsAny),
		SuccessText: concat(browser.SuccessTextAny, http.Success.BodyContainsAny),
		FailureText: concat(browser.FailureTextAny, http.Failure.BodyContainsAny),
		SuccessURL:  http.Success.URLContainsAny,
		FailureURL:  http.Failure.URLContainsAny,
	}
}

// Classify evaluates an HTTP response against a rule set. Blocked wins;
// otherwise exactly one of success/failure must match to decide.
func Classify(rules entity.RuleSet, statusCode int, body, finalURL string) Result {
	body = truncate(body)
	if m, ok := match(rules.Blocked, statusCode, body, finalURL); ok {
		return Result{Status: entity.ResultBlocked, Reason: "matched blocked rule " + m.String(), Matched: m.pattern,
			Captcha: hasCaptcha(body)}
	}
	sm, success := match(rules.Success, statusCode, body, finalURL)
	fm, failure := match(rules.Failure, statusCode, body, finalURL)
	return decide(success, sm, failure, fm, "HTTP")
}

// ClassifyBrowser evaluates rendered page text. URL rules are consulted
// only when no text rule matched.
func ClassifyBrowser(rules Browser, content, currentURL string) Result {
	content = truncate(content)
	if p, ok := containsAny(content, rules.BlockedText); ok {
		m := matchInfo{field: "page text", pattern: p}
		return Result{Status: entity.ResultBlocked, Reason: "blocked text detected " + m.String(), Matched: p,
			Captcha: hasCaptcha(content)}
	}
	sp, success := containsAny(content, rules.SuccessText)
	fp, failure := containsAny(content, rules.FailureText)
	if success || failure {
		return decide(success, matchInfo{"page text", sp}, failure, matchInfo{"page text", fp}, "browser")
	}
	if p, ok := containsAny(currentURL, rules.SuccessURL); ok {
		m := matchInfo{field: "url", pattern: p}
		return Result{Status: entity.ResultValid, Reason: "current URL matched success rule " + m.String(), Matched: p}
	}
	if p, ok := containsAny(currentURL, rules.FailureURL); ok {
		m := matchInfo{field: "url", pattern: p}
		return Result{Status: entity.ResultInvalid, Reason: "current URL matched failure rule " + m.String(), Matched: p}
	}
	return Result{Status: entity.ResultUnknown, Reason: "no configured browser rule matched"}
}

func decide(success bool, sm matchInfo, failure bool, fm matchInfo, stage string) Result {
	switch {
	case success && !failure:
		return Result{Status: entity.ResultValid, Reason: "matched success rule " + sm.String(), Matched: sm.pattern}
	case failure && !success:
		return Result{Status: entity.ResultInvalid, Reason: "matched failure rule " + fm.String(), Matched: fm.pattern}
	case success && failure:
		return Result{Status: entity.ResultUnknown, Reason: "conflicting success and failure signals"}
	}
	return Result{Status: entity.ResultUnknown, Reason: fmt.Sprintf("no configured %s rule matched", stage)}
}

type matchInfo struct {
	field   string
	pattern string
}

func (m matchInfo) String() string {
	return fmt.Sprintf("(%s contains %q)", m.field, m.pattern)
}

// match reports the first condition of rule satisfied by the signals.
func match(rule entity.Rule, statusCode int, body, finalURL string) (matchInfo, bool) {
	if rule.IsEmpty() {
		return matchInfo{}, false
	}
	if slices.Contains(rule.StatusCodes, statusCode) {
		return matchInfo{field: "status", pattern: fmt.Sprint(statusCode)}, true
	}
	if p, ok := containsAny(body, rule.BodyContainsAny); ok {
		return matchInfo{field: "body", pattern: p}, true
	}
	if p, ok := containsAny(finalURL, rule.URLContainsAny); ok {
		return matchInfo{field: "url", pattern: p}, true
	}
	return matchInfo{}, false
}

// containsAny returns the first non-empty pattern found in text,
// ignoring case.
func containsAny(text string, patterns []string) (string, bool) {
	if len(patterns) == 0 {
		return "", false
	}
	normalized := strings.ToLower(text)
	for _, p := range patterns {
		token := strings.ToLower(strings.TrimSpace(p))
		if token != "" && strings.Contains(normalized, token) {
			return p, true
		}
	}
	return "", false
}

func hasCaptcha(text string) bool {
	return strings.Contains(strings.ToLower(text), captchaMarker)
}

func truncate(s string) string {
	if len(s) > MaxBodyLength {
		return s[:MaxBodyLength]
	}
	return s
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
