// Package mailbox defines the mailbox provider contract used by scans.
package mailbox

import (
	"context"

	"inboxsweep/internal/extract"
)

// DefaultQuery narrows provider-side searches to likely newsletters.
const DefaultQuery = `is:inbox "unsubscribe"`

// Provider is a read-only view of one mailbox.
type Provider interface {
	// ListMessages returns up to max message ids, newest first. max <= 0
	// means no limit.
	ListMessages(ctx context.Context, accountID string, max int) ([]string, error)
	// GetMessage returns the headers and bodies of one message.
	GetMessage(ctx context.Context, id string) (extract.RawMessage, error)
	// TotalMessages returns the size of the whole mailbox.
	TotalMessages(ctx context.Context) (int, error)
}
