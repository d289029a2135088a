package unsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"inboxsweep/internal/classify"
)

func TestInspectPage(t *testing.T) {
	p := InspectPage(`<html><head><script>var captcha = 1;</script></head><body>
		<form>
			<input type="email" name="email">
			<input type="text" name="user_email" value="me@x.com">
			<input type="hidden" name="email_hash" value="">
			<input type="checkbox"><input type="checkbox">
			<input type="password">
		</form>
		<iframe src="https://hcaptcha.com/x"></iframe>
		<p>Manage   Subscriptions</p>
	</body></html>`)

	assert.Equal(t, 1, p.EmptyEmailInputs)
	assert.Equal(t, 2, p.Checkboxes)
	assert.Equal(t, 1, p.PasswordFields)
	assert.Equal(t, 1, p.CaptchaFrames)
	assert.Contains(t, p.Text, "manage subscriptions")
	assert.NotContains(t, p.Text, "var captcha")
}

func TestDetector_Reasons(t *testing.T) {
	d := DefaultDetector(classify.NewDomainSet(classify.DefaultLoginRequired))

	assert.NotEmpty(t, d.LoginReason("https://www.patreon.com/settings", Page{}))
	assert.NotEmpty(t, d.LoginReason("https://x.com/auth/start", Page{}))
	assert.NotEmpty(t, d.LoginReason("https://x.com/u", Page{Text: "please login to continue"}))
	assert.Empty(t, d.LoginReason("https://x.com/u", Page{Text: "you have been removed"}))

	assert.NotEmpty(t, d.ChallengeReason(Page{Text: "complete the captcha"}))
	assert.Empty(t, d.ChallengeReason(Page{Text: "unsubscribe"}))

	assert.Empty(t, d.ComplexReason(Page{Text: "email preferences", Checkboxes: 3}))
	assert.NotEmpty(t, d.ComplexReason(Page{Text: "email preferences", Checkboxes: 4}))
	assert.NotEmpty(t, d.ComplexReason(Page{EmptyEmailInputs: 1}))

	assert.True(t, d.Succeeded(Page{Text: "you are unsubscribed"}))
	assert.False(t, d.Succeeded(Page{Text: "click to unsubscribe"}))
}

func TestExpired(t *testing.T) {
	now := mustTime("2024-06-01T00:00:00Z")
	assert.True(t, expired("https://x.com/u?exp=1000", now))
	assert.True(t, expired("https://x.com/u?valid_until=1700000000", now))
	assert.False(t, expired("https://x.com/u?expires=4102444800", now))
	assert.False(t, expired("https://x.com/u?exp=soon", now))
	assert.False(t, expired("https://x.com/u", now))
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
