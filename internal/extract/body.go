package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Vocabulary is the case-insensitive set of phrases that mark an
// unsubscribe affordance in a message body or on a landing page.
var Vocabulary = []string{
	"unsubscribe",
	"opt out",
	"opt-out",
	"email preferences",
	"manage subscription",
}

var plainURLRe = regexp.MustCompile(`(?i)https?://[^\s<>"'()\[\]]+`)

// MatchesVocabulary reports whether s contains one of the unsubscribe phrases.
func MatchesVocabulary(s string) bool {
	s = strings.ToLower(s)
	for _, v := range Vocabulary {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}

// FindBodyLink returns the first unsubscribe link in document order: HTML
// anchors are checked first, then bare URLs in the plain-text part. When no
// plain-text part exists, the text rendered from the HTML is scanned instead.
func FindBodyLink(bodyHTML, bodyText string) string {
	var rendered string
	if strings.TrimSpace(bodyHTML) != "" {
		doc, err := html.Parse(strings.NewReader(bodyHTML))
		if err == nil {
			if link := firstAnchor(doc); link != "" {
				return link
			}
			if bodyText == "" {
				rendered = nodeText(doc)
			}
		}
	}
	if bodyText == "" {
		bodyText = rendered
	}
	return firstPlainURL(bodyText)
}

func firstAnchor(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "a" {
		href := strings.TrimSpace(attr(n, "href"))
		if href != "" && (IsHTTP(href) || IsMailto(href)) {
			if MatchesVocabulary(nodeText(n)) || MatchesVocabulary(href) || MatchesVocabulary(attr(n, "title")) {
				return href
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if link := firstAnchor(c); link != "" {
			return link
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// nodeText concatenates the text below n, skipping script and style content
// and breaking lines at block elements.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "tr", "li", "table", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteByte('\n')
			}
		}
	}
	walk(n)
	return b.String()
}

// firstPlainURL prefers a URL whose own text names the unsubscribe
// affordance, anywhere in text. Failing that, it takes the first URL that
// follows a vocabulary phrase on the same line, with no other URL between.
func firstPlainURL(text string) string {
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		for _, u := range plainURLRe.FindAllString(line, -1) {
			if u = trimURL(u); MatchesVocabulary(u) {
				return u
			}
		}
	}
	for _, line := range lines {
		prev := 0
		for _, loc := range plainURLRe.FindAllStringIndex(line, -1) {
			if MatchesVocabulary(line[prev:loc[0]]) {
				return trimURL(line[loc[0]:loc[1]])
			}
			prev = loc[1]
		}
	}
	return ""
}

func trimURL(u string) string {
	return strings.TrimRight(u, ".,;:!?")
}
