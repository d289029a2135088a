package tui

import "inboxsweep/internal/model"

// Async message types for Bubble Tea commands.

type scanCompleteMsg struct {
	res model.ScanResult
	err error
}

type unsubProgressMsg struct {
	done    int
	total   int
	outcome model.OutcomeRecord
}

type unsubCompleteMsg struct {
	agg model.AggregateOutcome
	err error
}

type whitelistMsg struct {
	email   string
	add     bool
	changed bool
	res     model.ScanResult
	err     error
}

type actionResultMsg struct {
	action string // "open link"
	err    error
}

type statusMsg string
