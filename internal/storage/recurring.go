package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const recurringColumns = `id, type, label, amount, recurrence, start_date, end_date,
	step_up_enabled, step_up_mode, step_up_every, step_up_value, step_up_from`

func scanRecurring(row interface{ Scan(...any) error }) (core.RecurringItem, error) {
	var (
		it      core.RecurringItem
		amount  string
		enabled sql.NullBool
		mode    sql.NullString
		every   sql.NullString
		value   sql.NullString
		from    sql.NullString
	)
	if err := row.Scan(&it.ID, &it.Type, &it.Label, &amount, &it.Recurrence, &it.StartDate, &it.EndDate,
		&enabled, &mode, &every, &value, &from); err != nil {
		return core.RecurringItem{}, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return core.RecurringItem{}, fmt.Errorf("corrupt amount for %s: %w", it.ID, err)
	}
	it.Amount = amt

	if enabled.Valid {
		su := &core.StepUp{
			Enabled: enabled.Bool,
			Mode:    core.StepUpMode(mode.String),
			Every:   core.StepUpEvery(every.String),
			From:    from.String,
		}
		if value.Valid && value.String != "" {
			v, err := decimal.NewFromString(value.String)
			if err != nil {
				return core.RecurringItem{}, fmt.Errorf("corrupt step-up value for %s: %w", it.ID, err)
			}
			su.Value = v
		}
		it.StepUp = su
	}
	return it, nil
}

// stepUpArgs flattens an optional step-up into its five nullable columns.
func stepUpArgs(su *core.StepUp) []any {
	if su == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{su.Enabled, string(su.Mode), string(su.Every), su.Value.String(), su.From}
}

// ListRecurring returns the user's recurring items in creation order.
func (r *SQLiteRepository) ListRecurring(ctx context.Context, userID int64) ([]core.RecurringItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_items WHERE user_id = ? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("list recurring items: %w", err)
	}
	defer rows.Close()

	items := []core.RecurringItem{}
	for rows.Next() {
		it, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring items: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) GetRecurring(ctx context.Context, userID int64, id string) (core.RecurringItem, error) {
	it, err := scanRecurring(r.db.QueryRowContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_items WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringItem{}, ErrNotFound
	}
	if err != nil {
		return core.RecurringItem{}, fmt.Errorf("get recurring item: %w", err)
	}
	return it, nil
}

// CreateRecurring stores item under userID. item.ID must be set and is
// unique per user only.
func (r *SQLiteRepository) CreateRecurring(ctx context.Context, userID int64, item core.RecurringItem) error {
	args := []any{item.ID, userID, string(item.Type), item.Label, item.Amount.String(),
		string(item.Recurrence), item.StartDate, item.EndDate}
	args = append(args, stepUpArgs(item.StepUp)...)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_items (id, user_id, type, label, amount, recurrence, start_date, end_date,
			step_up_enabled, step_up_mode, step_up_every, step_up_value, step_up_from)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert recurring item: %w", err)
	}
	return nil
}

// UpdateRecurring replaces every field of an existing item.
func (r *SQLiteRepository) UpdateRecurring(ctx context.Context, userID int64, item core.RecurringItem) error {
	args := []any{string(item.Type), item.Label, item.Amount.String(), string(item.Recurrence),
		item.StartDate, item.EndDate}
	args = append(args, stepUpArgs(item.StepUp)...)
	args = append(args, item.ID, userID)

	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_items SET type = ?, label = ?, amount = ?, recurrence = ?, start_date = ?, end_date = ?,
			step_up_enabled = ?, step_up_mode = ?, step_up_every = ?, step_up_value = ?, step_up_from = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update recurring item: %w", err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, userID int64, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_items WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring item: %w", err)
	}
	return expectOne(res)
}

// HasPosting reports whether the user's item was already posted for year/month.
func (r *SQLiteRepository) HasPosting(ctx context.Context, userID int64, itemID string, year, month int) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recurring_postings WHERE user_id = ? AND item_id = ? AND year = ? AND month = ?`,
		userID, itemID, year, month).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check posting: %w", err)
	}
	return n > 0, nil
}

// PostRecurring records the posting of item for year/month and inserts the
// resulting expense in the same transaction. When the month was already
// posted nothing is written and posted is false.
func (r *SQLiteRepository) PostRecurring(ctx context.Context, userID int64, itemID string, year, month int, e core.Expense) (saved core.Expense, posted bool, err error) {
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO recurring_postings (user_id, item_id, year, month) VALUES (?, ?, ?, ?)`,
			userID, itemID, year, month)
		if err != nil {
			return fmt.Errorf("insert posting: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		e.Source = core.SourceRecurring
		e.RecurringID = itemID
		saved, err = insertExpense(ctx, tx, userID, e)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE recurring_postings SET expense_id = ? WHERE user_id = ? AND item_id = ? AND year = ? AND month = ?`,
			saved.ID, userID, itemID, year, month); err != nil {
			return fmt.Errorf("link posting: %w", err)
		}
		posted = true
		return nil
	})
	return saved, posted, err
}
