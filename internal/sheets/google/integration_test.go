//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// Integration tests require a real spreadsheet shared with the service account.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_LedgerFeed(t *testing.T) {
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	creds := os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")
	credsFile := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")
	if creds == "" && credsFile == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, Options{
		SpreadsheetID:   spreadsheetID,
		SheetName:       os.Getenv("GOOGLE_SHEET_NAME"),
		CredentialsJSON: creds,
		CredentialsFile: credsFile,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	n := core.Notification{
		ID:        core.NewID(),
		UserID:    "integration-user",
		Kind:      core.NotificationSalaryCredited,
		Category:  "Salary",
		Amount:    decimal.RequireFromString("1.23"),
		Currency:  "USD",
		CreatedAt: time.Now(),
	}
	ref, err := client.AppendNotification(ctx, n)
	if err != nil {
		t.Fatalf("AppendNotification: %v", err)
	}
	again, err := client.AppendNotification(ctx, n)
	if err != nil {
		t.Fatalf("AppendNotification again: %v", err)
	}
	t.Logf("appended at %s, replay returned %s", ref, again)

	entries, err := client.ListEntries(ctx, "integration-user")
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	found := 0
	for _, e := range entries {
		if e.ID == n.ID {
			found++
		}
	}
	if found != 1 {
		t.Fatalf("expected exactly one row for %s, found %d", n.ID, found)
	}
}
