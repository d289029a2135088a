package gmail

import (
	"context"
	"fmt"
	"strings"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"

	"inboxsweep/internal/extract"
	"inboxsweep/internal/mailbox"
)

// pageSize is the Gmail list page size, not an overall cap.
const pageSize = 500

// Provider reads one Gmail account through the Gmail API.
type Provider struct {
	svc   *gmailv1.Service
	user  string
	query string
}

var _ mailbox.Provider = (*Provider)(nil)

// NewProvider wraps svc. An empty query uses mailbox.DefaultQuery.
func NewProvider(svc *gmailv1.Service, query string) *Provider {
	if query == "" {
		query = mailbox.DefaultQuery
	}
	return &Provider{svc: svc, user: "me", query: query}
}

// ListMessages pages through the search results until max ids are collected
// or the results run out. Gmail returns newest first.
func (p *Provider) ListMessages(ctx context.Context, accountID string, max int) ([]string, error) {
	user := p.user
	if accountID != "" {
		user = accountID
	}
	var ids []string
	pageToken := ""
	for {
		size := int64(pageSize)
		if max > 0 && int64(max-len(ids)) < size {
			size = int64(max - len(ids))
		}
		call := p.svc.Users.Messages.List(user).Q(p.query).MaxResults(size)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return ids, fmt.Errorf("list messages: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
			if max > 0 && len(ids) >= max {
				return ids, nil
			}
		}
		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetMessage fetches the full message and decodes its text and HTML parts.
func (p *Provider) GetMessage(ctx context.Context, id string) (extract.RawMessage, error) {
	msg, err := p.svc.Users.Messages.Get(p.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return extract.RawMessage{}, fmt.Errorf("get message %s: %w", id, err)
	}
	raw := extract.RawMessage{
		ID:      msg.Id,
		Headers: make(map[string]string),
	}
	if msg.InternalDate > 0 {
		raw.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload == nil {
		return raw, nil
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from", "subject", "date", "list-unsubscribe", "list-unsubscribe-post":
			// Keep the first occurrence; later duplicates are usually forwarded copies.
			if _, ok := raw.Headers[h.Name]; !ok {
				raw.Headers[h.Name] = h.Value
			}
		}
	}
	raw.BodyText, raw.BodyHTML = bodies(msg.Payload)
	return raw, nil
}

// TotalMessages returns the account's total message count.
func (p *Provider) TotalMessages(ctx context.Context) (int, error) {
	prof, err := p.svc.Users.GetProfile(p.user).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get profile: %w", err)
	}
	return int(prof.MessagesTotal), nil
}
