package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/civil"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

// Options configures the Sheets mirror.
type Options struct {
	SpreadsheetID   string
	SheetName       string // base name; the expense year is prefixed
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger
}

var _ ports.Mirror = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Expenses"
	}

	creds, err := credentials(opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetBase:     base,
		logger:        logger.WithComponent(log.ComponentSheets),
	}, nil
}

func credentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		return []byte(opts.CredentialsJSON), nil
	case strings.TrimSpace(opts.CredentialsFile) != "":
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

func (c *Client) sheetFor(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

// Append adds the expense as a new row of its year's sheet, writing the
// header first when the sheet is empty.
func (c *Client) Append(ctx context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := c.sheetFor(e.Date.Year)
	existing, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if row := findRow(existing.Values, e.ID); row > 0 {
		// Redelivered event; the row is already there.
		return fmt.Sprintf("%s!A%d", sheet, row), nil
	}

	rows := [][]any{expenseRow(e)}
	if len(existing.Values) == 0 {
		rows = append([][]any{header}, rows...)
	}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A:H", &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := sheet
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Appended expense row", log.FieldExpenseID, e.ID, "range", ref)
	return ref, nil
}

// DeleteExpense clears the row holding id. A missing row is not an error.
func (c *Client) DeleteExpense(ctx context.Context, id int64, date civil.Date) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := c.sheetFor(date.Year)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	row := findRow(resp.Values, id)
	if row == 0 {
		c.logger.WarnContext(ctx, "Expense row not found in sheet", log.FieldExpenseID, id, "sheet", sheet)
		return nil
	}
	rng := fmt.Sprintf("%s!A%d:H%d", sheet, row, row)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}
