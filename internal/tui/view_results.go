package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"inboxsweep/internal/model"
)

// outcomeItem wraps OutcomeRecord for the results list.
type outcomeItem struct {
	model.OutcomeRecord
}

func (o outcomeItem) FilterValue() string { return o.SenderEmail + " " + string(o.Status) }
func (o outcomeItem) Title() string {
	sender := o.SenderEmail
	if o.SenderName != "" {
		sender = o.SenderName
	}
	if sender == "" {
		sender = o.ID
	}
	return statusBadge(o.Status) + " " + sender
}
func (o outcomeItem) Description() string { return o.Message }

var statusStyles = map[model.Status]lipgloss.Style{
	model.StatusAutoSuccess:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	model.StatusManualRequired: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	model.StatusFailed:         lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	model.StatusNotAttempted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	model.StatusSkipped:        lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
}

func statusBadge(s model.Status) string {
	return statusStyles[s].Render(fmt.Sprintf("%-15s", s))
}

func outcomesToItems(outs []model.OutcomeRecord) []list.Item {
	items := make([]list.Item, len(outs))
	for i, o := range outs {
		items[i] = outcomeItem{o}
	}
	return items
}

func resultsTitle(agg model.AggregateOutcome) string {
	return fmt.Sprintf("Unsubscribed %d  manual %d  failed %d  not attempted %d  skipped %d",
		agg.AutoSuccess, agg.ManualRequired, agg.Failed, agg.NotAttempted, agg.Skipped)
}

func resultsFooter() string {
	return footerStyle.Render("o: open manual link  esc: back to candidates  q: quit")
}

func runningFooter() string {
	return footerStyle.Render("esc: stop after the current sender  ctrl+c: quit")
}
