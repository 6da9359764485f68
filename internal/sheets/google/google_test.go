package google

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{CredentialsJSON: "{}"})
	if err == nil || err.Error() != "missing spreadsheet id" {
		t.Fatalf("expected missing spreadsheet id error, got %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Options{SpreadsheetID: "sheet-id"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Options{SpreadsheetID: "sheet-id", CredentialsFile: "/non/existent/sa.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected file error, got %v", err)
	}
}

func TestClientWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetBase: "Ledger", now: time.Now}
	if _, err := c.AppendNotification(context.Background(), core.Notification{ID: "n1"}); err == nil {
		t.Fatal("expected error without a sheets service")
	}
	if _, err := c.ListEntries(context.Background(), "u1"); err == nil {
		t.Fatal("expected error without a sheets service")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Ledger", 2025, "2025 Ledger"},
		{"  Ledger  ", 2025, "2025 Ledger"},
		{"2024 Ledger", 2025, "2024 Ledger"},
		{"1800 Ledger", 2025, "2025 1800 Ledger"},
		{"", 2025, ""},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestFeedRowRoundTrip(t *testing.T) {
	created := time.Date(2025, 4, 15, 23, 30, 0, 0, time.UTC)
	n := core.Notification{
		ID:       "n1",
		UserID:   "u1",
		Kind:     core.NotificationDailyDeduction,
		Category: "Daily Needs",
		Amount:   decimal.RequireFromString("12.5"),
		Currency: "EUR",
	}

	row := feedRow(n, created)
	if row[0] != "2025-04-15" || row[4] != "12.50" || row[6] != "n1" {
		t.Fatalf("unexpected row %v", row)
	}

	cols := make([]string, len(row))
	for i, v := range row {
		cols[i] = v.(string)
	}
	got, ok := parseFeedRow(cols)
	if !ok {
		t.Fatal("expected row to parse")
	}
	if got.ID != "n1" || got.UserID != "u1" || got.Kind != n.Kind || !got.Amount.Equal(n.Amount) {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestParseFeedRowRejects(t *testing.T) {
	tests := []struct {
		name string
		cols []string
	}{
		{"header", []string{"Date", "User", "Kind", "Category", "Amount", "Currency", "ID"}},
		{"short", []string{"2025-04-15", "u1"}},
		{"bad amount", []string{"2025-04-15", "u1", "salary_credited", "Salary", "lots", "USD", "n1"}},
		{"no id", []string{"2025-04-15", "u1", "salary_credited", "Salary", "10", "USD", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseFeedRow(tt.cols); ok {
				t.Fatalf("expected %v to be rejected", tt.cols)
			}
		})
	}
}

func TestParseFeedRowAcceptsDecimalComma(t *testing.T) {
	got, ok := parseFeedRow([]string{"2025-04-15", "u1", "salary_credited", "Salary", "2000,50", "EUR", "n9"})
	if !ok || got.Amount.StringFixed(2) != "2000.50" {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
}
