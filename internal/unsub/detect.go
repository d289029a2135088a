package unsub

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"inboxsweep/internal/classify"
	"inboxsweep/internal/extract"
)

// Detector holds the content heuristics used on landing pages.
type Detector struct {
	LoginDomains         classify.DomainSet
	LoginPaths           []string
	LoginKeywords        []string
	ComplexKeywords      []string
	ConfirmEmailKeywords []string
	CaptchaMarkers       []string
	Affordances          []string // unsubscribe controls, tried in order
	Confirmations        []string // follow-up controls after the first click
	CheckboxLabels       []string // "tick to confirm" boxes ticked before clicking
	SuccessKeywords      []string
	MaxCheckboxes        int // preference centers show more than this many
}

// DefaultDetector returns the built-in heuristics with the given login set.
func DefaultDetector(login classify.DomainSet) Detector {
	return Detector{
		LoginDomains:         login,
		LoginPaths:           []string{"/login", "/signin", "/sign-in", "/auth"},
		LoginKeywords:        []string{"sign in", "log in", "login required", "please login", "authentication required"},
		ComplexKeywords:      []string{"email preferences", "manage subscriptions", "notification settings", "choose which emails", "select categories", "update preferences"},
		ConfirmEmailKeywords: []string{"confirmation email", "check your email"},
		CaptchaMarkers:       []string{"recaptcha", "hcaptcha", "captcha"},
		Affordances:          append(append([]string(nil), extract.Vocabulary...), "remove me"),
		Confirmations:        []string{"confirm", "yes", "remove me", "remove"},
		CheckboxLabels:       []string{"unsubscribe", "opt out", "opt-out", "remove me", "stop receiving"},
		SuccessKeywords:      []string{"unsubscribed", "removed", "success", "confirmed", "opted out"},
		MaxCheckboxes:        3,
	}
}

// Page is what the heuristics look at on a loaded page.
type Page struct {
	Text             string // lower-cased visible text
	PasswordFields   int
	Checkboxes       int
	EmptyEmailInputs int
	CaptchaFrames    int
}

// InspectPage parses page HTML into the features the heuristics need.
func InspectPage(content string) Page {
	var p Page
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		p.Text = strings.ToLower(content)
		return p
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "input":
				p.countInput(n)
			case "iframe":
				src := strings.ToLower(attrVal(n, "src"))
				if strings.Contains(src, "recaptcha") || strings.Contains(src, "hcaptcha") {
					p.CaptchaFrames++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	p.Text = strings.ToLower(strings.Join(strings.Fields(b.String()), " "))
	return p
}

func (p *Page) countInput(n *html.Node) {
	typ := strings.ToLower(attrVal(n, "type"))
	switch typ {
	case "password":
		p.PasswordFields++
	case "checkbox":
		p.Checkboxes++
	case "hidden":
		return
	}
	name := strings.ToLower(attrVal(n, "name") + " " + attrVal(n, "id"))
	if typ == "email" || ((typ == "" || typ == "text") && strings.Contains(name, "email")) {
		if strings.TrimSpace(attrVal(n, "value")) == "" {
			p.EmptyEmailInputs++
		}
	}
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// LoginReason returns why the page at landingURL looks like a login wall,
// or "" when it does not.
func (d Detector) LoginReason(landingURL string, p Page) string {
	if u, err := url.Parse(landingURL); err == nil {
		if d.LoginDomains.Match(u.Hostname()) {
			return "sign-in required by " + strings.ToLower(u.Hostname())
		}
		path := strings.ToLower(u.Path)
		for _, lp := range d.LoginPaths {
			if strings.Contains(path, lp) {
				return "page redirected to a sign-in form"
			}
		}
	}
	if p.PasswordFields > 0 {
		return "page asks for a password"
	}
	if kw := firstContained(p.Text, d.LoginKeywords); kw != "" {
		return "page asks to " + kw
	}
	return ""
}

// ChallengeReason reports a human-verification challenge.
func (d Detector) ChallengeReason(p Page) string {
	if p.CaptchaFrames > 0 || firstContained(p.Text, d.CaptchaMarkers) != "" {
		return "CAPTCHA verification required"
	}
	return ""
}

// ComplexReason reports a flow the engine is not scripted to traverse.
func (d Detector) ComplexReason(p Page) string {
	if firstContained(p.Text, d.ComplexKeywords) != "" && p.Checkboxes > d.MaxCheckboxes {
		return "preferences page with multiple options"
	}
	if firstContained(p.Text, d.ConfirmEmailKeywords) != "" {
		return "unsubscribe must be confirmed by email"
	}
	if p.EmptyEmailInputs > 0 {
		return "form requires your email address"
	}
	return ""
}

// Succeeded reports whether the page text confirms the unsubscribe.
func (d Detector) Succeeded(p Page) bool {
	return firstContained(p.Text, d.SuccessKeywords) != ""
}

func firstContained(text string, keywords []string) string {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, strings.ToLower(k)) {
			return k
		}
	}
	return ""
}
