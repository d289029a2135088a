package extract

import (
	"net/url"
	"strings"
)

// ParseListUnsubscribe returns the preferred target of an RFC 2369
// List-Unsubscribe header. The header carries comma-separated angle-bracketed
// URIs, e.g.:
// <https://example.com/unsub>, <mailto:unsub@example.com>
// The first http(s) target wins; otherwise the first mailto target. Empty
// when the header has no usable target.
func ParseListUnsubscribe(header string) string {
	var mailto string
	for _, target := range listTargets(header) {
		switch scheme(target) {
		case "http", "https":
			return target
		case "mailto":
			if mailto == "" {
				mailto = target
			}
		}
	}
	return mailto
}

// listTargets splits the header on commas outside angle brackets, since a
// bracketed URI may itself contain commas.
func listTargets(header string) []string {
	var out []string
	var b strings.Builder
	depth := 0
	flush := func() {
		t := strings.TrimSpace(b.String())
		t = strings.TrimSpace(strings.Trim(t, "<>"))
		if t != "" {
			out = append(out, t)
		}
		b.Reset()
	}
	for _, r := range header {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case r == ',' && depth == 0:
			flush()
			continue
		case r == '\r' || r == '\n':
			continue
		}
		b.WriteRune(r)
	}
	flush()
	return out
}

func scheme(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// IsHTTP reports whether link is an http or https URL.
func IsHTTP(link string) bool {
	s := scheme(link)
	return s == "http" || s == "https"
}

// IsMailto reports whether link is a mailto target.
func IsMailto(link string) bool {
	return scheme(link) == "mailto"
}

// Host returns the lower-cased host of link without port, or "" for links
// that carry no host (mailto targets yield the recipient's domain).
func Host(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	if strings.EqualFold(u.Scheme, "mailto") {
		addr := u.Opaque
		if addr == "" {
			addr = u.Path
		}
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if at := strings.LastIndexByte(addr, '@'); at >= 0 {
			return strings.ToLower(addr[at+1:])
		}
		return ""
	}
	return strings.ToLower(u.Hostname())
}
