// Package classify assigns an automatability tier to candidate records.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"inboxsweep/internal/extract"
	"inboxsweep/internal/model"
)

// ErrInputInvalid marks a record that is structurally unusable, e.g. one with
// no sender. Such records are tiered unknown and reported, never dropped.
var ErrInputInvalid = errors.New("classification input invalid")

// Input is what a rule sees: the record plus its allow-list membership.
type Input struct {
	Record      model.CandidateRecord
	Whitelisted bool
}

// Rule is one step of the decision list. Match reports whether the rule
// applies; the first matching rule decides the tier.
type Rule struct {
	Name  string
	Match func(Input) bool
	Tier  model.Difficulty
	Err   error // returned alongside Tier when set
}

// Classifier evaluates an ordered rule list top to bottom.
type Classifier struct {
	rules []Rule
	login DomainSet
	plat  DomainSet
}

// New builds a classifier over the login-required and known-platform sets.
func New(loginRequired, platforms DomainSet) *Classifier {
	c := &Classifier{login: loginRequired, plat: platforms}
	c.rules = []Rule{
		{Name: "whitelisted", Tier: model.DifficultyWhitelisted, Match: func(in Input) bool {
			return in.Whitelisted
		}},
		{Name: "invalid", Tier: model.DifficultyUnknown, Err: ErrInputInvalid, Match: func(in Input) bool {
			return strings.TrimSpace(in.Record.SenderEmail) == ""
		}},
		{Name: "header", Tier: model.DifficultyEasy, Match: func(in Input) bool {
			return in.Record.UnsubscribeOrigin == model.OriginHeader && in.Record.HasLink()
		}},
		{Name: "no-link", Tier: model.DifficultyMedium, Match: func(in Input) bool {
			return !in.Record.HasLink()
		}},
		{Name: "login-required-domain", Tier: model.DifficultyHard, Match: func(in Input) bool {
			return c.login.Match(extract.Host(in.Record.UnsubscribeLink))
		}},
		{Name: "mailto", Tier: model.DifficultyHard, Match: func(in Input) bool {
			return extract.IsMailto(in.Record.UnsubscribeLink)
		}},
		{Name: "known-platform", Tier: model.DifficultyMedium, Match: func(in Input) bool {
			return c.plat.Match(extract.Host(in.Record.UnsubscribeLink))
		}},
		{Name: "body", Tier: model.DifficultyMedium, Match: func(in Input) bool {
			return in.Record.UnsubscribeOrigin == model.OriginBody
		}},
		{Name: "default", Tier: model.DifficultyMedium, Match: func(Input) bool { return true }},
	}
	return c
}

// NewDefault builds a classifier over the built-in domain sets.
func NewDefault() *Classifier {
	return New(NewDomainSet(DefaultLoginRequired), NewDomainSet(DefaultPlatforms))
}

// Classify returns the tier of rec. It is deterministic and total; the
// returned error wraps ErrInputInvalid for records tiered unknown.
func (c *Classifier) Classify(rec model.CandidateRecord, whitelisted bool) (model.Difficulty, error) {
	d, rule := c.evaluate(Input{Record: rec, Whitelisted: whitelisted})
	if rule.Err != nil {
		return d, fmt.Errorf("record %s: %w", rec.ID, rule.Err)
	}
	return d, nil
}

func (c *Classifier) evaluate(in Input) (model.Difficulty, Rule) {
	for _, r := range c.rules {
		if r.Match(in) {
			return r.Tier, r
		}
	}
	// Unreachable while the default rule is last.
	return model.DifficultyUnknown, Rule{Name: "none", Err: ErrInputInvalid}
}

// Tier classifies rec into a TieredRecord, turning invalid input into a
// warning instead of an error.
func (c *Classifier) Tier(rec model.CandidateRecord, whitelisted bool) model.TieredRecord {
	d, rule := c.evaluate(Input{Record: rec, Whitelisted: whitelisted})
	t := model.TieredRecord{CandidateRecord: rec, Difficulty: d, Rule: rule.Name, Whitelisted: whitelisted}
	if rule.Err != nil {
		t.Warning = fmt.Sprintf("record %s: %v", rec.ID, rule.Err)
	}
	return t
}

// LoginRequired exposes the login-required set to the unsubscribe engine.
func (c *Classifier) LoginRequired() DomainSet { return c.login }
