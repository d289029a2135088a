package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"inboxsweep/internal/model"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("39")).
	PaddingBottom(1)

func detailHeader(r model.TieredRecord) string {
	date := ""
	if !r.SentAt.IsZero() {
		date = r.SentAt.Local().Format("Jan 2, 2006 15:04")
	}
	return headerStyle.Render(fmt.Sprintf("From: %s\nSubject: %s\nDate: %s", senderName(r), r.Subject, date))
}

func detailBody(r model.TieredRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Difficulty:   %s\n", tierBadge(r.Difficulty))
	if r.Rule != "" {
		fmt.Fprintf(&b, "Rule:         %s\n", r.Rule)
	}
	fmt.Fprintf(&b, "Origin:       %s\n", r.UnsubscribeOrigin)
	fmt.Fprintf(&b, "Link:         %s\n", r.UnsubscribeLink)
	if r.BodyLink != "" && r.BodyLink != r.UnsubscribeLink {
		fmt.Fprintf(&b, "Body link:    %s\n", r.BodyLink)
	}
	fmt.Fprintf(&b, "One-click:    %t\n", r.OneClick)
	fmt.Fprintf(&b, "Whitelisted:  %t\n", r.Whitelisted)
	if r.Warning != "" {
		fmt.Fprintf(&b, "Warning:      %s\n", r.Warning)
	}
	return b.String()
}

func detailFooter() string {
	return footerStyle.Render("o: open link  w: whitelist  esc: back  q: quit")
}
