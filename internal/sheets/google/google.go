// Package google writes the ledger feed to a Google Sheets spreadsheet using
// service account credentials. Rows go to a per-year sheet, e.g. "2025 Ledger".
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finledger/internal/core"
	"finledger/internal/log"
	ports "finledger/internal/sheets"
)

// Ensure interface conformance
var (
	_ ports.FeedWriter = (*Client)(nil)
	_ ports.FeedReader = (*Client)(nil)
)

const defaultSheetName = "Ledger"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	now           func() time.Time
	logger        *slog.Logger
}

// Options configures New. One of CredentialsJSON or CredentialsFile is
// required; GOOGLE_APPLICATION_CREDENTIALS is used when both are empty.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	Logger          *slog.Logger
}

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetBase := strings.TrimSpace(opts.SheetName)
	if sheetBase == "" {
		sheetBase = defaultSheetName
	}
	logger := log.WithComponent(opts.Logger, log.ComponentSheets)

	credentialsJSON, err := loadCredentials(opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger.InfoContext(ctx, "Google Sheets ledger feed ready", "spreadsheet_id", spreadsheetID, "sheet", sheetBase)
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		now:           time.Now,
		logger:        logger,
	}, nil
}

func loadCredentials(opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.CredentialsJSON)
	file := strings.TrimSpace(opts.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// AppendNotification appends n to the sheet for its creation year. A row
// carrying the same notification ID is not written twice.
func (c *Client) AppendNotification(ctx context.Context, n core.Notification) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if n.ID == "" {
		return "", errors.New("notification without id")
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = c.now()
	}
	sheet := yearPrefixedName(c.sheetBase, created.Year())

	if row, err := c.findRow(ctx, sheet, n.ID); err != nil {
		return "", err
	} else if row > 0 {
		c.logger.DebugContext(ctx, "Notification already in feed", log.FieldNotification, n.ID, "row", row)
		return fmt.Sprintf("%s!A%d:G%d", sheet, row, row), nil
	}

	vr := &gsheet.ValueRange{Values: [][]any{feedRow(n, created)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A:G", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := sheet
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// findRow returns the 1-based row holding notification id, or 0.
func (c *Client) findRow(ctx context.Context, sheet, id string) (int, error) {
	rng := fmt.Sprintf("%s!G:G", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	for i, row := range resp.Values {
		if len(row) > 0 && strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1, nil
		}
	}
	return 0, nil
}

// ListEntries reads the current year's sheet and returns the rows for userID.
// Header and malformed rows are skipped.
func (c *Client) ListEntries(ctx context.Context, userID string) ([]ports.FeedEntry, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, c.now().Year())
	rng := fmt.Sprintf("%s!A:G", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []ports.FeedEntry
	for _, row := range resp.Values {
		n, ok := parseFeedRow(toStrings(row))
		if !ok {
			continue
		}
		if userID == "" || n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
