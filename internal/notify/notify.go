// Package notify decouples user notifications from ledger mutations.
//
// Jobs call a Notifier after their unit of work has committed. The outbox
// notifier only records the event; the Dispatcher later hands pending rows to
// a Publisher and retries failures with backoff.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/log"
)

// Notifier receives the user-facing effects of recurring jobs.
type Notifier interface {
	NotifySalaryCredited(ctx context.Context, userID string, amount decimal.Decimal, currency string) error
	NotifyDailyDeduction(ctx context.Context, userID, category string, amount decimal.Decimal, currency string) error
}

// Outbox is the durable queue behind OutboxNotifier and Dispatcher.
type Outbox interface {
	Enqueue(ctx context.Context, n core.Notification) error
	// Due returns up to limit pending or failed rows whose next attempt is not after now.
	Due(ctx context.Context, now time.Time, limit int) ([]core.Notification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, next time.Time, lastErr string, dead bool) error
}

// Publisher delivers one notification downstream.
type Publisher interface {
	Publish(ctx context.Context, n core.Notification) error
}

// OutboxNotifier implements Notifier by enqueueing into an Outbox.
type OutboxNotifier struct {
	outbox Outbox
	now    func() time.Time
}

func NewOutboxNotifier(outbox Outbox) *OutboxNotifier {
	return &OutboxNotifier{outbox: outbox, now: func() time.Time { return time.Now().UTC() }}
}

func (o *OutboxNotifier) NotifySalaryCredited(ctx context.Context, userID string, amount decimal.Decimal, currency string) error {
	return o.enqueue(ctx, core.NotificationSalaryCredited, userID, "Salary", amount, currency)
}

func (o *OutboxNotifier) NotifyDailyDeduction(ctx context.Context, userID, category string, amount decimal.Decimal, currency string) error {
	return o.enqueue(ctx, core.NotificationDailyDeduction, userID, category, amount, currency)
}

func (o *OutboxNotifier) enqueue(ctx context.Context, kind core.NotificationKind, userID, category string, amount decimal.Decimal, currency string) error {
	now := o.now()
	n := core.Notification{
		ID:            core.NewID(),
		UserID:        userID,
		Kind:          kind,
		Category:      category,
		Amount:        amount,
		Currency:      currency,
		Status:        core.NotificationPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := o.outbox.Enqueue(ctx, n); err != nil {
		return fmt.Errorf("%w: enqueue %s for %s: %w", core.ErrNotificationDeliveryFailed, kind, userID, err)
	}
	return nil
}

// LogPublisher writes notifications to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: log.WithComponent(logger, log.ComponentNotify)}
}

func (p *LogPublisher) Publish(ctx context.Context, n core.Notification) error {
	p.logger.InfoContext(ctx, "Notification",
		log.FieldNotification, n.ID,
		log.FieldUserID, n.UserID,
		log.FieldOperation, log.OpPublish,
		"kind", n.Kind,
		log.FieldCategory, n.Category,
		log.FieldAmount, core.FormatAmount(n.Amount),
		"currency", n.Currency)
	return nil
}

// Nop discards notifications.
type Nop struct{}

func (Nop) NotifySalaryCredited(context.Context, string, decimal.Decimal, string) error { return nil }

func (Nop) NotifyDailyDeduction(context.Context, string, string, decimal.Decimal, string) error {
	return nil
}
