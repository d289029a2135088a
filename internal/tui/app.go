// Package tui is the interactive candidate browser: scan, pick senders,
// unsubscribe and review the outcomes.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"inboxsweep/internal/model"
	"inboxsweep/internal/sweep"
	"inboxsweep/internal/util"
)

type viewState int

const (
	viewLoading    viewState = iota
	viewCandidates           // main candidate list
	viewDetail               // single candidate
	viewRunning              // unsubscribe batch in progress
	viewResults              // outcomes of the last batch
)

type AppModel struct {
	// Core state
	service *sweep.Service
	account *sweep.Account
	limit   int
	Err     error
	status  string

	// View state machine
	view     viewState
	scan     model.ScanResult
	selected map[string]bool
	detail   *model.TieredRecord
	outcome  model.AggregateOutcome

	// Running batch
	cancel  context.CancelFunc
	done    int
	total   int
	current string

	// Sub-models
	candidates list.Model
	results    list.Model
	detailView viewport.Model
	bar        progress.Model

	// Layout
	width, height int

	// Program reference for sending messages from goroutines
	program *tea.Program

	// openURL is replaced in tests.
	openURL func(string) error
}

// SetProgram stores a reference to the tea.Program so goroutines can send
// progress messages back to the Update loop.
func (m *AppModel) SetProgram(p *tea.Program) {
	m.program = p
}

func NewAppModel(service *sweep.Service, account *sweep.Account, limit int) AppModel {
	cl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	// Remove esc from the list's built-in Quit binding so it doesn't exit on home
	cl.KeyMap.Quit.SetKeys("q")
	rl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	rl.KeyMap.Quit.SetKeys("q")

	return AppModel{
		service:    service,
		account:    account,
		limit:      limit,
		status:     "Scanning...",
		view:       viewLoading,
		selected:   make(map[string]bool),
		candidates: cl,
		results:    rl,
		detailView: viewport.New(0, 0),
		bar:        progress.New(progress.WithDefaultGradient()),
		openURL:    util.OpenURL,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return m.scanCmd()
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listH := msg.Height - 4 // room for footer
		m.candidates.SetSize(msg.Width, listH)
		m.results.SetSize(msg.Width, listH)
		m.detailView.Width = msg.Width
		m.detailView.Height = msg.Height - 6 // room for header + footer
		m.bar.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case scanCompleteMsg:
		if msg.err != nil {
			m.Err = msg.err
			m.status = "Scan failed!"
			return m, tea.Quit
		}
		m.setScan(msg.res)
		m.selected = make(map[string]bool)
		m.candidates.SetItems(candidatesToItems(m.scan.Candidates, m.selected))
		m.view = viewCandidates
		m.status = ""
		if msg.res.Malformed > 0 {
			m.status = fmt.Sprintf("%d messages could not be read and were skipped", msg.res.Malformed)
			return m, clearStatusAfter(3 * time.Second)
		}
		return m, nil

	case unsubProgressMsg:
		m.done = msg.done
		m.total = msg.total
		m.current = msg.outcome.SenderEmail
		return m, nil

	case unsubCompleteMsg:
		m.cancel = nil
		if msg.err != nil {
			m.status = fmt.Sprintf("Unsubscribe failed: %v", msg.err)
			m.view = viewCandidates
			return m, clearStatusAfter(3 * time.Second)
		}
		m.outcome = msg.agg
		m.results.SetItems(outcomesToItems(msg.agg.Outcomes))
		m.results.Title = resultsTitle(msg.agg)
		m.selected = make(map[string]bool)
		m.candidates.SetItems(candidatesToItems(m.scan.Candidates, m.selected))
		m.view = viewResults
		m.status = ""
		return m, nil

	case whitelistMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Whitelist failed: %v", msg.err)
			return m, clearStatusAfter(2 * time.Second)
		}
		if len(msg.res.Candidates) > 0 {
			m.setScan(msg.res)
			m.candidates.SetItems(candidatesToItems(m.scan.Candidates, m.selected))
			m.refreshDetail()
		}
		verb := "removed from"
		if msg.add {
			verb = "added to"
		}
		if !msg.changed {
			verb = "unchanged in"
		}
		m.status = fmt.Sprintf("%s %s whitelist", msg.email, verb)
		return m, clearStatusAfter(2 * time.Second)

	case actionResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = fmt.Sprintf("%s complete", msg.action)
		}
		return m, clearStatusAfter(2 * time.Second)

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	// Delegate to active sub-model
	var cmd tea.Cmd
	switch m.view {
	case viewCandidates:
		m.candidates, cmd = m.candidates.Update(msg)
	case viewResults:
		m.results, cmd = m.results.Update(msg)
	case viewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) setScan(res model.ScanResult) {
	m.scan = res
	m.candidates.Title = statsLine(res)
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	switch key {
	case "ctrl+c":
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	}

	switch m.view {
	case viewCandidates:
		// When the list is filtering, let it handle all keys except ctrl+c
		if m.candidates.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.candidates, cmd = m.candidates.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case " ", "x":
			m.toggleSelected()
			return m, nil
		case "a":
			m.selectTier(model.DifficultyEasy)
			return m, nil
		case "enter":
			return m.enterDetail()
		case "u":
			return m.unsubscribeSelected()
		case "w":
			if c, ok := m.currentCandidate(); ok {
				return m, m.whitelistCmd(c)
			}
			return m, nil
		case "o":
			if c, ok := m.currentCandidate(); ok {
				return m, m.openCmd(c.UnsubscribeLink)
			}
			return m, nil
		case "s":
			m.status = "Scanning..."
			m.view = viewLoading
			return m, m.scanCmd()
		}
		var cmd tea.Cmd
		m.candidates, cmd = m.candidates.Update(msg)
		return m, cmd

	case viewDetail:
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewCandidates
			m.detail = nil
			return m, nil
		case "o":
			if m.detail != nil {
				return m, m.openCmd(m.detail.UnsubscribeLink)
			}
			return m, nil
		case "w":
			if m.detail != nil {
				return m, m.whitelistCmd(*m.detail)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.detailView, cmd = m.detailView.Update(msg)
		return m, cmd

	case viewRunning:
		if key == "esc" && m.cancel != nil {
			m.cancel()
			m.status = "Stopping after the current sender..."
		}
		return m, nil

	case viewResults:
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewCandidates
			return m, nil
		case "o", "enter":
			if sel, ok := m.results.SelectedItem().(outcomeItem); ok {
				if sel.ManualURL == "" {
					m.status = "No manual link for this sender"
					return m, clearStatusAfter(2 * time.Second)
				}
				return m, m.openCmd(sel.ManualURL)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *AppModel) currentCandidate() (model.TieredRecord, bool) {
	sel, ok := m.candidates.SelectedItem().(candidateItem)
	if !ok {
		return model.TieredRecord{}, false
	}
	return sel.TieredRecord, true
}

func (m *AppModel) toggleSelected() {
	sel, ok := m.candidates.SelectedItem().(candidateItem)
	if !ok {
		return
	}
	if m.selected[sel.ID] {
		delete(m.selected, sel.ID)
	} else {
		m.selected[sel.ID] = true
	}
	sel.selected = m.selected[sel.ID]
	m.candidates.SetItem(m.candidates.GlobalIndex(), sel)
}

// selectTier adds every candidate of the given tier to the selection.
func (m *AppModel) selectTier(d model.Difficulty) {
	for _, c := range m.scan.Candidates {
		if c.Difficulty == d {
			m.selected[c.ID] = true
		}
	}
	m.candidates.SetItems(candidatesToItems(m.scan.Candidates, m.selected))
}

// selectedIDs returns the selection in candidate order.
func (m *AppModel) selectedIDs() []string {
	var ids []string
	for _, c := range m.scan.Candidates {
		if m.selected[c.ID] {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func (m *AppModel) enterDetail() (tea.Model, tea.Cmd) {
	c, ok := m.currentCandidate()
	if !ok {
		return m, nil
	}
	m.detail = &c
	m.refreshDetail()
	m.detailView.GotoTop()
	m.view = viewDetail
	return m, nil
}

// refreshDetail re-reads the open candidate from the current scan.
func (m *AppModel) refreshDetail() {
	if m.detail == nil {
		return
	}
	for _, c := range m.scan.Candidates {
		if c.ID == m.detail.ID {
			rec := c
			m.detail = &rec
			break
		}
	}
	m.detailView.SetContent(detailHeader(*m.detail) + "\n\n" + detailBody(*m.detail))
}

func (m *AppModel) unsubscribeSelected() (tea.Model, tea.Cmd) {
	ids := m.selectedIDs()
	if len(ids) == 0 {
		if c, ok := m.currentCandidate(); ok {
			ids = []string{c.ID}
		}
	}
	if len(ids) == 0 {
		m.status = "Nothing selected"
		return m, clearStatusAfter(2 * time.Second)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done, m.total, m.current = 0, len(ids), ""
	m.view = viewRunning
	m.status = ""
	return m, m.unsubscribeCmd(ctx, ids)
}

// Commands

func (m *AppModel) scanCmd() tea.Cmd {
	svc, acct, limit := m.service, m.account, m.limit
	return func() tea.Msg {
		res, err := svc.Scan(context.Background(), acct, limit)
		return scanCompleteMsg{res: res, err: err}
	}
}

func (m *AppModel) unsubscribeCmd(ctx context.Context, ids []string) tea.Cmd {
	svc, acct, program := m.service, m.account, m.program
	return func() tea.Msg {
		progressFn := func(done, total int, o model.OutcomeRecord) {
			if program != nil {
				program.Send(unsubProgressMsg{done: done, total: total, outcome: o})
			}
		}
		agg, err := svc.Unsubscribe(ctx, acct, ids, progressFn)
		return unsubCompleteMsg{agg: agg, err: err}
	}
}

func (m *AppModel) whitelistCmd(c model.TieredRecord) tea.Cmd {
	svc, acct := m.service, m.account
	add := !c.Whitelisted
	return func() tea.Msg {
		ctx := context.Background()
		changed, err := svc.ToggleWhitelist(ctx, c.SenderEmail, c.SenderName, add)
		if err != nil {
			return whitelistMsg{email: c.SenderEmail, add: add, err: err}
		}
		res, err := svc.Retier(ctx, acct)
		return whitelistMsg{email: c.SenderEmail, add: add, changed: changed, res: res, err: err}
	}
}

func (m *AppModel) openCmd(link string) tea.Cmd {
	open := m.openURL
	return func() tea.Msg {
		if link == "" {
			return actionResultMsg{action: "Open link", err: fmt.Errorf("no unsubscribe link")}
		}
		return actionResultMsg{action: "Open link", err: open(link)}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	// Error state
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	// Loading/scanning
	if m.view == viewLoading {
		if m.status != "" {
			return m.status + "\n"
		}
		return "Loading...\n"
	}

	var b strings.Builder

	switch m.view {
	case viewCandidates:
		b.WriteString(m.candidates.View())
		b.WriteString("\n")
		b.WriteString(candidatesFooter())
	case viewDetail:
		b.WriteString(m.detailView.View())
		b.WriteString("\n")
		b.WriteString(detailFooter())
	case viewRunning:
		b.WriteString(m.runningView())
		b.WriteString("\n")
		b.WriteString(runningFooter())
	case viewResults:
		b.WriteString(m.results.View())
		b.WriteString("\n")
		b.WriteString(resultsFooter())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}

	return b.String()
}

func (m *AppModel) runningView() string {
	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}
	line := fmt.Sprintf("Unsubscribing %d / %d", m.done, m.total)
	if m.current != "" {
		line += "  last: " + m.current
	}
	return headerStyle.Render(line) + "\n" + m.bar.ViewAs(pct)
}
