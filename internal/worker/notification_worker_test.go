package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/amqp"
	"finledger/internal/core"
	"finledger/internal/sheets/memory"
)

type failingFeed struct{ err error }

func (f failingFeed) AppendNotification(context.Context, core.Notification) (string, error) {
	return "", f.err
}

func message(id, user string) *amqp.NotificationMessage {
	return &amqp.NotificationMessage{
		ID:        id,
		UserID:    user,
		Kind:      core.NotificationDailyDeduction,
		Category:  "Rent",
		Amount:    decimal.RequireFromString("33.33"),
		Currency:  "USD",
		CreatedAt: time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC),
		Timestamp: time.Now(),
	}
}

func TestHandleNotificationAppendsOnce(t *testing.T) {
	feed := memory.New()
	w := NewNotificationWorker(feed, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := w.HandleNotification(ctx, message("n1", "u1")); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if err := w.HandleNotification(ctx, message("n2", "u2")); err != nil {
		t.Fatalf("second notification: %v", err)
	}

	rows, err := feed.ListEntries(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected redelivery to be deduplicated, got %d rows", len(rows))
	}
	if rows[0].Status != core.NotificationSent || !rows[0].Amount.Equal(decimal.RequireFromString("33.33")) {
		t.Fatalf("unexpected row %+v", rows[0])
	}
}

func TestHandleNotificationErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	w := NewNotificationWorker(failingFeed{err: boom}, nil)
	ctx := context.Background()

	if err := w.HandleNotification(ctx, message("n1", "u1")); !errors.Is(err, boom) {
		t.Fatalf("expected feed error to surface, got %v", err)
	}
	if err := w.HandleNotification(ctx, nil); err == nil {
		t.Fatal("expected error for nil message")
	}
	if err := w.HandleNotification(ctx, message("", "u1")); err != nil {
		t.Fatalf("message without id should be dropped, got %v", err)
	}
}

type countingFeed struct{ calls int }

func (f *countingFeed) AppendNotification(_ context.Context, n core.Notification) (string, error) {
	f.calls++
	return "row:" + n.ID, nil
}

func TestHandleNotificationSkipsRecentRedelivery(t *testing.T) {
	feed := &countingFeed{}
	w := NewNotificationWorker(feed, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := w.HandleNotification(ctx, message("n1", "u1")); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if feed.calls != 1 {
		t.Fatalf("feed called %d times, want 1", feed.calls)
	}
}
