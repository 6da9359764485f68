// Package sheets defines the spreadsheet ledger feed: a human-readable,
// append-only copy of the notifications the recurring jobs produce.
package sheets

import (
	"context"

	"finledger/internal/core"
)

// Ports for outbound adapters.
type (
	// FeedWriter appends one notification as a spreadsheet row.
	FeedWriter interface {
		AppendNotification(ctx context.Context, n core.Notification) (rowRef string, err error)
	}

	// FeedReader returns the rows written for a user, oldest first.
	FeedReader interface {
		ListEntries(ctx context.Context, userID string) ([]FeedEntry, error)
	}
)

// FeedEntry is one parsed feed row.
type FeedEntry = core.Notification
