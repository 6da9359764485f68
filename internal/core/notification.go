package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	NotificationSalaryCredited NotificationKind = "salary_credited"
	NotificationDailyDeduction NotificationKind = "daily_deduction"
)

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationDead    NotificationStatus = "dead"
)

type (
	NotificationKind   string
	NotificationStatus string

	// Notification is a queued user-facing effect of a recurring job.
	Notification struct {
		ID            string
		UserID        string
		Kind          NotificationKind
		Category      string
		Amount        decimal.Decimal
		Currency      string
		Status        NotificationStatus
		Attempts      int
		NextAttemptAt time.Time
		LastError     string
		CreatedAt     time.Time
	}
)
