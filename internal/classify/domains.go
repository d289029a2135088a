package classify

import "strings"

// DefaultLoginRequired are platforms whose unsubscribe pages sit behind a login.
var DefaultLoginRequired = []string{
	"medium.com",
	"quora.com",
	"substack.com",
	"patreon.com",
}

// DefaultPlatforms are mail-marketing platforms with one-page unsubscribe forms.
var DefaultPlatforms = []string{
	"mailchimp.com",
	"sendgrid.net",
	"constantcontact.com",
	"aweber.com",
	"getresponse.com",
	"activecampaign.com",
}

// DomainSet matches hosts against a list of domains. A host matches when it
// equals a domain or is a subdomain of it.
type DomainSet struct {
	domains []string
}

// NewDomainSet normalizes the given domains. Blank entries are ignored.
func NewDomainSet(domains []string) DomainSet {
	s := DomainSet{}
	for _, d := range domains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			s.domains = append(s.domains, d)
		}
	}
	return s
}

// Match reports whether host belongs to the set.
func (s DomainSet) Match(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	for _, d := range s.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
