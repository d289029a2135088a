package model

import "time"

// Origin records where an unsubscribe link was found.
type Origin string

const (
	OriginHeader Origin = "header" // RFC 2369 List-Unsubscribe header
	OriginBody   Origin = "body"   // HTML anchor or plain-text URL in the body
	OriginNone   Origin = "none"
)

// Difficulty is the automatability tier assigned by the classifier.
type Difficulty string

const (
	DifficultyEasy        Difficulty = "easy"
	DifficultyMedium      Difficulty = "medium"
	DifficultyHard        Difficulty = "hard"
	DifficultyWhitelisted Difficulty = "whitelisted"
	DifficultyUnknown     Difficulty = "unknown"
)

// Difficulties lists every tier in display order.
var Difficulties = []Difficulty{
	DifficultyEasy,
	DifficultyMedium,
	DifficultyHard,
	DifficultyWhitelisted,
	DifficultyUnknown,
}

// Status is the terminal state of one unsubscribe attempt.
type Status string

const (
	StatusAutoSuccess    Status = "auto_success"
	StatusManualRequired Status = "manual_required"
	StatusFailed         Status = "failed"
	StatusNotAttempted   Status = "not_attempted" // batch cancelled before this record ran
	StatusSkipped        Status = "skipped"       // sender is on the allow-list
)

// Method names the strategy that produced an outcome.
type Method string

const (
	MethodHeaderRequest     Method = "header_request"
	MethodBodyAutomation    Method = "body_automation"
	MethodLoginRequired     Method = "login_required"
	MethodComplexFlow       Method = "complex_flow"
	MethodMailtoUnsupported Method = "mailto_unsupported"
	MethodNone              Method = "none"
)

// CandidateRecord is the signal extracted from one scanned message.
type CandidateRecord struct {
	ID          string
	SenderEmail string // lower-cased, trimmed
	SenderName  string // may be empty
	Subject     string
	SentAt      time.Time // zero when the message carries no usable date

	UnsubscribeLink   string
	UnsubscribeOrigin Origin

	// BodyLink is the first unsubscribe link found in the body, kept even
	// when the header supplied UnsubscribeLink so header failures can fall
	// back to browser automation.
	BodyLink string
	// OneClick is set when the sender advertises RFC 8058 one-click POST.
	OneClick bool
}

// HasLink reports whether any unsubscribe mechanism was found.
func (c CandidateRecord) HasLink() bool { return c.UnsubscribeLink != "" }

// TieredRecord is a candidate enriched with its classification.
type TieredRecord struct {
	CandidateRecord
	Difficulty  Difficulty
	Rule        string // classifier rule that decided Difficulty
	Whitelisted bool
	Warning     string // data-quality warning surfaced to the caller
}

// OutcomeRecord is the terminal result of one unsubscribe attempt.
type OutcomeRecord struct {
	ID          string
	SenderEmail string
	SenderName  string
	Status      Status
	Method      Method
	Message     string
	ManualURL   string // only set for StatusManualRequired
}

// AggregateOutcome summarizes one unsubscribe batch.
type AggregateOutcome struct {
	BatchID        string
	AutoSuccess    int
	ManualRequired int
	Failed         int
	NotAttempted   int
	Skipped        int
	Outcomes       []OutcomeRecord
}

// Tally recomputes the counters from Outcomes.
func (a *AggregateOutcome) Tally() {
	a.AutoSuccess, a.ManualRequired, a.Failed, a.NotAttempted, a.Skipped = 0, 0, 0, 0, 0
	for _, o := range a.Outcomes {
		switch o.Status {
		case StatusAutoSuccess:
			a.AutoSuccess++
		case StatusManualRequired:
			a.ManualRequired++
		case StatusFailed:
			a.Failed++
		case StatusNotAttempted:
			a.NotAttempted++
		case StatusSkipped:
			a.Skipped++
		}
	}
}

// InboxStats are the estimator's aggregate statistics for a scan.
type InboxStats struct {
	TotalEmails          int
	ScannedEmails        int
	FoundNewsletters     int
	EstimatedNewsletters int
	RecommendedLimit     int // 0 means scan everything
}

// ScanResult is returned by a scan of one account.
type ScanResult struct {
	Candidates     []TieredRecord
	Stats          InboxStats
	CategoryCounts map[Difficulty]int
	Malformed      int // messages skipped because extraction failed
}

// AllowEntry is one sender exempted from unsubscribe.
type AllowEntry struct {
	SenderEmail string    `db:"sender_email"`
	SenderName  string    `db:"sender_name"`
	AddedAt     time.Time `db:"added_at"`
}
