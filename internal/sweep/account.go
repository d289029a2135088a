package sweep

import (
	"sync"
	"time"

	"inboxsweep/internal/mailbox"
	"inboxsweep/internal/model"
)

// Account is the session state for one mailbox: its provider and the
// candidates of the most recent scan. Candidates are never persisted.
type Account struct {
	ID       string
	Provider mailbox.Provider

	mu      sync.Mutex
	last    *model.ScanResult
	byID    map[string]model.TieredRecord
	scanned time.Time
}

// NewAccount returns an account with no scan yet.
func NewAccount(id string, provider mailbox.Provider) *Account {
	return &Account{ID: id, Provider: provider}
}

// LastScan returns a copy of the most recent scan result.
func (a *Account) LastScan() (model.ScanResult, time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return model.ScanResult{}, time.Time{}, false
	}
	res := *a.last
	res.Candidates = append([]model.TieredRecord(nil), a.last.Candidates...)
	res.CategoryCounts = make(map[model.Difficulty]int, len(a.last.CategoryCounts))
	for k, v := range a.last.CategoryCounts {
		res.CategoryCounts[k] = v
	}
	return res, a.scanned, true
}

// record looks up a candidate of the last scan.
func (a *Account) record(id string) (model.TieredRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.byID[id]
	return rec, ok
}

// replace swaps in a new scan result, discarding the previous candidates.
func (a *Account) replace(res model.ScanResult, at time.Time) {
	byID := make(map[string]model.TieredRecord, len(res.Candidates))
	for _, c := range res.Candidates {
		byID[c.ID] = c
	}
	a.mu.Lock()
	a.last = &res
	a.byID = byID
	a.scanned = at
	a.mu.Unlock()
}
