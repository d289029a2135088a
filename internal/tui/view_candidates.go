package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"inboxsweep/internal/model"
)

// candidateItem wraps TieredRecord to customize list display.
type candidateItem struct {
	model.TieredRecord
	selected bool
}

func (c candidateItem) FilterValue() string {
	return c.SenderName + " " + c.SenderEmail + " " + c.Subject
}

func (c candidateItem) Title() string {
	mark := "[ ] "
	if c.selected {
		mark = "[x] "
	}
	return mark + tierBadge(c.Difficulty) + " " + senderName(c.TieredRecord)
}

func (c candidateItem) Description() string {
	parts := []string{}
	if c.Subject != "" {
		parts = append(parts, c.Subject)
	}
	if !c.SentAt.IsZero() {
		parts = append(parts, c.SentAt.Local().Format("Jan 2, 2006"))
	}
	parts = append(parts, "via "+string(c.UnsubscribeOrigin))
	if c.Warning != "" {
		parts = append(parts, "! "+c.Warning)
	}
	return strings.Join(parts, "  ")
}

var tierStyles = map[model.Difficulty]lipgloss.Style{
	model.DifficultyEasy:        lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	model.DifficultyMedium:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	model.DifficultyHard:        lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	model.DifficultyWhitelisted: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	model.DifficultyUnknown:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
}

func tierBadge(d model.Difficulty) string {
	style, ok := tierStyles[d]
	if !ok {
		style = tierStyles[model.DifficultyUnknown]
	}
	return style.Render(fmt.Sprintf("%-11s", d))
}

func senderName(r model.TieredRecord) string {
	if r.SenderName != "" {
		return fmt.Sprintf("%s <%s>", r.SenderName, r.SenderEmail)
	}
	return r.SenderEmail
}

var footerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("241")).
	PaddingTop(1)

func candidatesFooter() string {
	return footerStyle.Render("space: select  a: select easy  u: unsubscribe  w: whitelist  o: open link  enter: details  s: rescan  q: quit")
}

func candidatesToItems(recs []model.TieredRecord, selected map[string]bool) []list.Item {
	items := make([]list.Item, len(recs))
	for i, r := range recs {
		items[i] = candidateItem{TieredRecord: r, selected: selected[r.ID]}
	}
	return items
}

// statsLine summarizes a scan for the list title.
func statsLine(res model.ScanResult) string {
	limit := "all"
	if res.Stats.RecommendedLimit > 0 {
		limit = fmt.Sprintf("%d", res.Stats.RecommendedLimit)
	}
	return fmt.Sprintf("%d newsletters in %d scanned (~%d of %d total, suggested depth %s)  easy %d  medium %d  hard %d  whitelisted %d",
		res.Stats.FoundNewsletters, res.Stats.ScannedEmails,
		res.Stats.EstimatedNewsletters, res.Stats.TotalEmails, limit,
		res.CategoryCounts[model.DifficultyEasy], res.CategoryCounts[model.DifficultyMedium],
		res.CategoryCounts[model.DifficultyHard], res.CategoryCounts[model.DifficultyWhitelisted])
}
