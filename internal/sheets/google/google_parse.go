package google

import (
	"time"

	"finledger/internal/core"
)

const feedDateLayout = "2006-01-02"

// Feed columns: A date, B user, C kind, D category, E amount, F currency, G notification id.
func feedRow(n core.Notification, created time.Time) []any {
	return []any{
		created.UTC().Format(feedDateLayout),
		n.UserID,
		string(n.Kind),
		n.Category,
		core.FormatAmount(n.Amount),
		n.Currency,
		n.ID,
	}
}

// parseFeedRow is the inverse of feedRow. Rows with an unparseable date or
// amount, such as a header row, report false.
func parseFeedRow(cols []string) (core.Notification, bool) {
	if len(cols) < 7 || cols[6] == "" {
		return core.Notification{}, false
	}
	date, err := time.Parse(feedDateLayout, cols[0])
	if err != nil {
		return core.Notification{}, false
	}
	amount, err := core.ParseAmount(cols[4])
	if err != nil {
		return core.Notification{}, false
	}
	return core.Notification{
		ID:        cols[6],
		UserID:    cols[1],
		Kind:      core.NotificationKind(cols[2]),
		Category:  cols[3],
		Amount:    amount,
		Currency:  cols[5],
		Status:    core.NotificationSent,
		CreatedAt: date,
	}, true
}
