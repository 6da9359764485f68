package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

func TestFeedAppendIsIdempotentPerNotification(t *testing.T) {
	ctx := context.Background()
	f := New()

	n := core.Notification{ID: "n1", UserID: "u1", Amount: decimal.NewFromInt(5)}
	ref1, err := f.AppendNotification(ctx, n)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	ref2, err := f.AppendNotification(ctx, n)
	if err != nil {
		t.Fatalf("append again: %v", err)
	}
	if ref1 != "mem:1" || ref2 != ref1 {
		t.Fatalf("refs = %s, %s", ref1, ref2)
	}
	if _, err := f.AppendNotification(ctx, core.Notification{ID: "n2", UserID: "u2"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, _ := f.ListEntries(ctx, "u1")
	if len(rows) != 1 || rows[0].ID != "n1" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	all, _ := f.ListEntries(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}

	if _, err := f.AppendNotification(ctx, core.Notification{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}
