// Package worker consumes delivered notifications and mirrors them into the
// ledger feed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finledger/internal/amqp"
	"finledger/internal/cache"
	"finledger/internal/core"
	"finledger/internal/log"
	"finledger/internal/sheets"
)

const (
	recentSize = 4096
	recentTTL  = time.Hour
)

// NotificationWorker appends every consumed notification to a FeedWriter.
// Feed writers key rows by notification ID; recently appended IDs are also
// remembered locally so redeliveries skip the feed round trip.
type NotificationWorker struct {
	feed   sheets.FeedWriter
	recent *cache.LRU[string]
	logger *slog.Logger
}

func NewNotificationWorker(feed sheets.FeedWriter, logger *slog.Logger) *NotificationWorker {
	return &NotificationWorker{
		feed:   feed,
		recent: cache.NewLRU[string](recentSize, recentTTL),
		logger: log.WithComponent(logger, log.ComponentWorker),
	}
}

// HandleNotification processes a single notification message from AMQP.
// A returned error makes the consumer requeue the message.
func (w *NotificationWorker) HandleNotification(ctx context.Context, msg *amqp.NotificationMessage) error {
	if msg == nil {
		return errors.New("nil notification message")
	}
	if msg.ID == "" || msg.UserID == "" {
		// Nothing to key the row on; requeueing would loop forever.
		w.logger.WarnContext(ctx, "Dropping notification without id or user", log.FieldNotification, msg.ID, log.FieldUserID, msg.UserID)
		return nil
	}

	if ref, ok := w.recent.Get(msg.ID); ok {
		w.logger.DebugContext(ctx, "Notification already appended", log.FieldNotification, msg.ID, "row", ref)
		return nil
	}

	n := msg.Notification()
	n.Status = core.NotificationSent

	w.logger.InfoContext(ctx, "Processing notification",
		log.FieldOperation, log.OpDeliver,
		log.FieldNotification, n.ID,
		log.FieldUserID, n.UserID,
		"kind", n.Kind,
		log.FieldCategory, n.Category,
		log.FieldAmount, core.FormatAmount(n.Amount),
		"currency", n.Currency)

	ref, err := w.feed.AppendNotification(ctx, n)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to append notification to feed",
			log.FieldNotification, n.ID,
			"error", err,
			"timestamp", msg.Timestamp)
		return fmt.Errorf("append notification %s to feed: %w", n.ID, err)
	}

	w.recent.Set(n.ID, ref)
	w.logger.InfoContext(ctx, "Notification appended to feed",
		log.FieldNotification, n.ID,
		"row", ref)
	return nil
}
