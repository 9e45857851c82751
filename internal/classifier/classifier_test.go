package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/redeem-checker/internal/entity"
)

func rules() entity.RuleSet {
	return entity.RuleSet{
		Blocked: entity.Rule{BodyContainsAny: []string{"captcha"}, StatusCodes: []int{429}},
		Success: entity.Rule{BodyContainsAny: []string{"Redeemed"}, URLContainsAny: []string{"/thanks"}},
		Failure: entity.Rule{BodyContainsAny: []string{"invalid code"}, StatusCodes: []int{404}},
	}
}

func TestClassifyTieBreak(t *testing.T) {
	tests := []struct {
		name string
		body string
		want entity.ResultStatus
	}{
		{"success only", "code redeemed!", entity.ResultValid},
		{"failure only", "sorry, invalid code", entity.ResultInvalid},
		{"both", "redeemed? no: invalid code", entity.ResultUnknown},
		{"neither", "hello", entity.ResultUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(rules(), 200, tt.body, "https://example.com/r")
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestClassifyUnknownReasons(t *testing.T) {
	assert.Equal(t, "conflicting success and failure signals",
		Classify(rules(), 200, "redeemed invalid code", "").Reason)
	assert.Equal(t, "no configured HTTP rule matched",
		Classify(rules(), 200, "", "").Reason)
}

func TestClassifyBlockedWins(t *testing.T) {
	got := Classify(rules(), 200, "Please solve the CAPTCHA. Redeemed", "")
	assert.Equal(t, entity.ResultBlocked, got.Status)
	assert.Equal(t, "captcha", got.Matched)
	assert.Contains(t, got.Reason, `body contains "captcha"`)

	byStatus := Classify(rules(), 429, "redeemed", "")
	assert.Equal(t, entity.ResultBlocked, byStatus.Status)
	assert.Equal(t, "429", byStatus.Matched)
	assert.False(t, byStatus.Captcha)
}

func TestClassifyFlagsCaptchaWhicheverRuleMatched(t *testing.T) {
	byStatus := Classify(rules(), 429, "Too many tries. Solve the reCAPTCHA", "")
	assert.Equal(t, "429", byStatus.Matched)
	assert.True(t, byStatus.Captcha)

	custom := entity.RuleSet{Blocked: entity.Rule{BodyContainsAny: []string{"access denied", "captcha"}}}
	byPhrase := Classify(custom, 403, "Access denied. Please complete the CAPTCHA", "")
	assert.Equal(t, "access denied", byPhrase.Matched)
	assert.True(t, byPhrase.Captcha)

	plain := Classify(custom, 403, "Access denied", "")
	assert.Equal(t, entity.ResultBlocked, plain.Status)
	assert.False(t, plain.Captcha)

	assert.False(t, Classify(rules(), 200, "redeemed", "").Captcha, "only blocked verdicts carry the flag")

	page := ClassifyBrowser(Browser{BlockedText: []string{"verify you are human"}}, "Verify you are human: hCaptcha", "")
	assert.True(t, page.Captcha)
}

func TestClassifyCaseInsensitive(t *testing.T) {
	upper := Classify(rules(), 200, "CAPTCHA", "")
	lower := Classify(rules(), 200, "captcha", "")
	assert.Equal(t, upper.Status, lower.Status)
}

func TestClassifyURLAndStatusRules(t *testing.T) {
	assert.Equal(t, entity.ResultValid, Classify(rules(), 200, "", "https://x.test/thanks?ok").Status)
	assert.Equal(t, entity.ResultInvalid, Classify(rules(), 404, "", "").Status)
}

func TestEmptyRuleNeverMatches(t *testing.T) {
	empty := entity.RuleSet{Success: entity.Rule{BodyContainsAny: []string{"", "  "}}}
	assert.Equal(t, entity.ResultUnknown, Classify(empty, 200, "anything", "").Status)
}

func TestClassifyTruncatesBody(t *testing.T) {
	body := strings.Repeat("a", MaxBodyLength) + "redeemed"
	assert.Equal(t, entity.ResultUnknown, Classify(rules(), 200, body, "").Status)
}

func TestClassifyBrowser(t *testing.T) {
	browser := entity.BrowserConfig{
		SuccessTextAny: []string{"Code applied"},
		FailureTextAny: []string{"expired"},
		BlockedTextAny: []string{"verify you are human"},
	}
	r := BrowserRules(rules(), browser)

	assert.Equal(t, entity.ResultBlocked, ClassifyBrowser(r, "Please VERIFY you are human", "").Status)
	assert.Equal(t, entity.ResultBlocked, ClassifyBrowser(r, "captcha", "").Status, "HTTP blocked body rules are a secondary source")
	assert.Equal(t, entity.ResultValid, ClassifyBrowser(r, "code applied", "").Status)
	assert.Equal(t, entity.ResultValid, ClassifyBrowser(r, "<p>redeemed</p>", "").Status)
	assert.Equal(t, entity.ResultInvalid, ClassifyBrowser(r, "this code has expired", "").Status)
	assert.Equal(t, entity.ResultUnknown, ClassifyBrowser(r, "code applied but expired", "https://x/thanks").Status)
	assert.Equal(t, entity.ResultValid, ClassifyBrowser(r, "nothing here", "https://x/thanks").Status)

	none := ClassifyBrowser(r, "nothing here", "https://x/home")
	assert.Equal(t, entity.ResultUnknown, none.Status)
	assert.Equal(t, "no configured browser rule matched", none.Reason)
}
