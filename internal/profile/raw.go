package profile

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RawProfile is the on-disk shape of a profile file. Every field tolerates
// malformed input so one bad value never makes a profile unloadable.
type RawProfile struct {
	Name        looseString `yaml:"name"`
	Description looseString `yaml:"description"`
	Mode        looseString `yaml:"mode"`
	URLTemplate looseString `yaml:"url_template"`
	Form        rawForm     `yaml:"form"`
	HTTP        rawHTTP     `yaml:"http"`
	Browser     rawBrowser  `yaml:"browser"`
}

type rawForm struct {
	URL             looseString `yaml:"url"`
	CodeSelector    looseString `yaml:"code_selector"`
	SubmitSelector  looseString `yaml:"submit_selector"`
	WaitForSelector looseString `yaml:"wait_for_selector"`
}

type rawRule struct {
	StatusCodes     looseInts    `yaml:"status_codes"`
	BodyContainsAny looseStrings `yaml:"body_contains_any"`
	URLContainsAny  looseStrings `yaml:"url_contains_any"`
}

type rawHTTP struct {
	Enabled        looseBool    `yaml:"enabled"`
	Method         looseString  `yaml:"method"`
	TimeoutSeconds looseInt     `yaml:"timeout_seconds"`
	Headers        looseHeaders `yaml:"headers"`
	PostURL        looseString  `yaml:"post_url"`
	CodeField      looseString  `yaml:"code_field"`
	Success        rawRule      `yaml:"success"`
	Failure        rawRule      `yaml:"failure"`
	Blocked        rawRule      `yaml:"blocked"`
}

type rawBrowser struct {
	Enabled           looseBool    `yaml:"enabled"`
	Headless          looseBool    `yaml:"headless"`
	LoginRequired     looseBool    `yaml:"login_required"`
	TimeoutMS         looseInt     `yaml:"timeout_ms"`
	WaitAfterSubmitMS looseInt     `yaml:"wait_after_submit_ms"`
	ResultSelector    looseString  `yaml:"result_selector"`
	StorageStatePath  looseString  `yaml:"storage_state_path"`
	SuccessTextAny    looseStrings `yaml:"success_text_any"`
	FailureTextAny    looseStrings `yaml:"failure_text_any"`
	BlockedTextAny    looseStrings `yaml:"blocked_text_any"`
}

// Sections that are not mappings are ignored.

func (f *rawForm) UnmarshalYAML(n *yaml.Node) error {
	type plain rawForm
	return decodeMapping(n, (*plain)(f))
}

func (r *rawRule) UnmarshalYAML(n *yaml.Node) error {
	type plain rawRule
	return decodeMapping(n, (*plain)(r))
}

func (h *rawHTTP) UnmarshalYAML(n *yaml.Node) error {
	type plain rawHTTP
	return decodeMapping(n, (*plain)(h))
}

func (b *rawBrowser) UnmarshalYAML(n *yaml.Node) error {
	type plain rawBrowser
	return decodeMapping(n, (*plain)(b))
}

func decodeMapping(n *yaml.Node, v any) error {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	return n.Decode(v)
}

type looseString struct {
	value string
	set   bool
}

func (s *looseString) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.Tag != "!!null" {
		s.value, s.set = strings.TrimSpace(n.Value), true
	}
	return nil
}

func (s looseString) or(fallback string) string {
	if !s.set {
		return fallback
	}
	return s.value
}

type looseInt struct {
	value int
	ok    bool
}

func (i *looseInt) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return nil
	}
	if v, err := strconv.Atoi(strings.TrimSpace(n.Value)); err == nil {
		i.value, i.ok = v, true
	}
	return nil
}

// orMin returns the parsed value clamped to minimum, or fallback when the
// value is absent or malformed.
func (i looseInt) orMin(fallback, minimum int) int {
	v := fallback
	if i.ok {
		v = i.value
	}
	return max(v, minimum)
}

type looseBool struct {
	value bool
	ok    bool
}

func (b *looseBool) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return nil
	}
	var v bool
	if err := n.Decode(&v); err == nil {
		b.value, b.ok = v, true
		return nil
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(n.Value)); err == nil {
		b.value, b.ok = v, true
	}
	return nil
}

func (b looseBool) or(fallback bool) bool {
	if !b.ok {
		return fallback
	}
	return b.value
}

// looseStrings accepts a single string or a list of scalars.
type looseStrings []string

func (l *looseStrings) UnmarshalYAML(n *yaml.Node) error {
	var out []string
	switch n.Kind {
	case yaml.ScalarNode:
		if v := strings.TrimSpace(n.Value); v != "" && n.Tag != "!!null" {
			out = append(out, v)
		}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				continue
			}
			if v := strings.TrimSpace(item.Value); v != "" {
				out = append(out, v)
			}
		}
	}
	*l = out
	return nil
}

// looseInts keeps the integer items of a list and drops the rest.
type looseInts []int

func (l *looseInts) UnmarshalYAML(n *yaml.Node) error {
	var out []int
	if n.Kind == yaml.SequenceNode {
		for _, item := range n.Content {
			if v, err := strconv.Atoi(strings.TrimSpace(item.Value)); err == nil && item.Kind == yaml.ScalarNode {
				out = append(out, v)
			}
		}
	}
	*l = out
	return nil
}

type looseHeaders map[string]string

func (h *looseHeaders) UnmarshalYAML(n *yaml.Node) error {
	out := map[string]string{}
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := strings.TrimSpace(n.Content[i].Value)
			val := n.Content[i+1]
			if key == "" || val.Kind != yaml.ScalarNode {
				continue
			}
			out[key] = val.Value
		}
	}
	*h = out
	return nil
}
