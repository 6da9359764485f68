package jobs

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report summarises one job run. Every selected user lands in exactly one of
// Processed, Duplicates, NothingDue, Skipped or Failed.
type Report struct {
	Job        string
	RunID      string
	Period     string
	StartedAt  time.Time
	FinishedAt time.Time

	Eligible   int
	Processed  int
	Duplicates int // already posted for this period
	NothingDue int // selected but nothing to post
	Skipped    int // not started because the run was cancelled
	Failed     int

	// NotifyFailures counts committed postings whose notification could not be queued.
	NotifyFailures int
	TotalAmount    decimal.Decimal
	Failures       []Failure
}

type Failure struct {
	UserID string
	Error  string
}

func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
