package google

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"neovest/internal/core"
	ports "neovest/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const rowDateLayout = "2006-01-02"

// Config selects the spreadsheet and the yearly sheet base name
// (e.g. "Expenses" becomes "2026 Expenses").
type Config struct {
	SpreadsheetID string
	SheetName     string
	// Credentials is a service account key in JSON form.
	Credentials []byte
	// Location decides which year an expense belongs to. UTC when nil.
	Location *time.Location
}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	loc           *time.Location
}

var _ ports.Exporter = (*Exporter)(nil)

// New builds a Sheets exporter authenticated with a service account. Extra
// client options are appended last, so they can override the endpoint or
// HTTP client.
func New(ctx context.Context, cfg Config, extra ...goption.ClientOption) (*Exporter, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		return nil, errors.New("missing GOOGLE_SHEET_NAME")
	}
	if len(cfg.Credentials) == 0 && len(extra) == 0 {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	if len(cfg.Credentials) > 0 {
		opts = append(opts, goption.WithCredentialsJSON(cfg.Credentials))
	}
	opts = append(opts, extra...)

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		loc:           loc,
	}, nil
}

// Append writes [date, user, description, amount, category, payment method, tags]
// below the last row of the sheet for the expense's year.
func (x *Exporter) Append(ctx context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if x.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := x.SheetFor(e.Date)
	rng := fmt.Sprintf("'%s'!A:G", sheet)
	vr := &gsheet.ValueRange{Values: [][]any{x.row(e)}}

	resp, err := x.svc.Spreadsheets.Values.Append(x.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// SheetFor returns the yearly sheet name an expense dated t is written to.
func (x *Exporter) SheetFor(t time.Time) string {
	return yearPrefixedName(x.sheetBase, t.In(x.loc).Year())
}

func (x *Exporter) row(e core.Expense) []any {
	return []any{
		e.Date.In(x.loc).Format(rowDateLayout),
		e.UserID,
		e.Description,
		e.Amount.StringFixed(2),
		e.Category,
		e.PaymentMethod.Label(),
		strings.Join(e.Tags, ", "),
	}
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
