// Package memory is an in-process ledger feed used when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finledger/internal/core"
	"finledger/internal/sheets"
)

var (
	_ sheets.FeedWriter = (*Feed)(nil)
	_ sheets.FeedReader = (*Feed)(nil)
)

type Feed struct {
	mu   sync.Mutex
	rows []core.Notification
	seen map[string]int
}

func New() *Feed {
	return &Feed{seen: make(map[string]int)}
}

// AppendNotification stores n and returns a synthetic row reference.
// A notification ID already in the feed returns the existing row.
func (f *Feed) AppendNotification(_ context.Context, n core.Notification) (string, error) {
	if n.ID == "" {
		return "", fmt.Errorf("notification without id")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.seen[n.ID]; ok {
		return fmt.Sprintf("mem:%d", row), nil
	}
	f.rows = append(f.rows, n)
	f.seen[n.ID] = len(f.rows)
	return fmt.Sprintf("mem:%d", len(f.rows)), nil
}

func (f *Feed) ListEntries(_ context.Context, userID string) ([]sheets.FeedEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sheets.FeedEntry
	for _, n := range f.rows {
		if userID == "" || n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}
