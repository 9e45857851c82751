package entity

import "time"

// Mode selects how a code is delivered to the target service.
type Mode string

const (
	ModeURLTemplate Mode = "url_template"
	ModeForm        Mode = "form"
)

// CodePlaceholder is substituted with the escaped code in URL templates.
const CodePlaceholder = "{code}"

// Rule is one condition set used to classify a response. Text lists are
// matched as case-insensitive substrings, status codes by exact membership.
type Rule struct {
	StatusCodes     []int
	BodyContainsAny []string
	URLContainsAny  []string
}

// IsEmpty reports whether the rule has no conditions at all.
func (r Rule) IsEmpty() bool {
	return len(r.StatusCodes) == 0 && len(r.BodyContainsAny) == 0 && len(r.URLContainsAny) == 0
}

// RuleSet groups the rules consulted for a single classification.
type RuleSet struct {
	Blocked Rule
	Success Rule
	Failure Rule
}

// Target is the request target of a profile. It is either a
// URLTemplateTarget or a FormTarget.
type Target interface {
	Mode() Mode
	isTarget()
}

// URLTemplateTarget renders the code directly into a URL.
type URLTemplateTarget struct {
	Template string
}

func (URLTemplateTarget) Mode() Mode { return ModeURLTemplate }
func (URLTemplateTarget) isTarget()  {}

// FormTarget submits the code through a page form.
type FormTarget struct {
	URL             string
	CodeSelector    string
	SubmitSelector  string
	WaitForSelector string
}

func (FormTarget) Mode() Mode { return ModeForm }
func (FormTarget) isTarget()  {}

// HTTPConfig configures the direct HTTP probe.
type HTTPConfig struct {
	Enabled   bool
	Method    string
	Timeout   time.Duration
	Headers   map[string]string
	PostURL   string
	CodeField string
	Rules     RuleSet
}

// BrowserConfig configures the browser fallback.
type BrowserConfig struct {
	Enabled          bool
	Headless         bool
	LoginRequired    bool
	Timeout          time.Duration
	WaitAfterSubmit  time.Duration
	ResultSelector   string
	StorageStatePath string
	SuccessTextAny   []string
	FailureTextAny   []string
	BlockedTextAny   []string
}

// Profile is the normalized configuration for one target service.
// Profiles are immutable once loaded.
type Profile struct {
	Name        string
	Description string
	Target      Target
	HTTP        HTTPConfig
	Browser     BrowserConfig
}

// Mode returns the active delivery mode.
func (p *Profile) Mode() Mode {
	if p.Target == nil {
		return ModeURLTemplate
	}
	return p.Target.Mode()
}

// URLTemplate returns the template of a url_template profile, or "" for
// form profiles.
func (p *Profile) URLTemplate() string {
	if t, ok := p.Target.(URLTemplateTarget); ok {
		return t.Template
	}
	return ""
}

// Form returns the form target, if the profile is in form mode.
func (p *Profile) Form() (FormTarget, bool) {
	f, ok := p.Target.(FormTarget)
	return f, ok
}
