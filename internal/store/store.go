// Package store persists the sender allow-list.
package store

import (
	"context"

	"inboxsweep/internal/model"
)

// AllowList is the gateway to senders exempted from unsubscribe. Keys are
// normalized email addresses.
type AllowList interface {
	IsWhitelisted(ctx context.Context, email string) (bool, error)
	// Add returns false when the sender was already listed.
	Add(ctx context.Context, email, name string) (bool, error)
	// Remove returns false when the sender was not listed.
	Remove(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]model.AllowEntry, error)
	Clear(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int, error)
}
