package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"fintrack/internal/core"
)

// PendingSyncExpense represents minimal data needed for sync queue messages
type PendingSyncExpense struct {
	ID        int64
	UserID    int64
	Version   int64
	CreatedAt time.Time
}

const expenseColumns = `id, user_id, date, amount_cents, category, note, source, COALESCE(recurring_id, '')`

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var (
		e     core.Expense
		date  string
		cents int64
	)
	if err := row.Scan(&e.ID, &e.UserID, &date, &cents, &e.Category, &e.Note, &e.Source, &e.RecurringID); err != nil {
		return core.Expense{}, err
	}
	d, err := parseStoredDate(date)
	if err != nil {
		return core.Expense{}, err
	}
	e.Date = d
	e.Amount = core.FromCents(cents)
	return e, nil
}

func collectExpenses(rows *sql.Rows) ([]core.Expense, error) {
	defer rows.Close()
	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func insertExpense(ctx context.Context, tx *sql.Tx, userID int64, e core.Expense) (core.Expense, error) {
	source := e.Source
	if source == "" {
		source = core.SourceManual
	}
	var recurringID any
	if e.RecurringID != "" {
		recurringID = e.RecurringID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (user_id, date, amount_cents, category, note, source, recurring_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, e.Date.String(), core.ToCents(e.Amount), string(e.Category), e.Note, source, recurringID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense id: %w", err)
	}
	e.ID = id
	e.UserID = userID
	e.Source = source
	e.Amount = core.FromCents(core.ToCents(e.Amount))
	return e, nil
}

// InsertExpenses stores every expense in one transaction.
func (r *SQLiteRepository) InsertExpenses(ctx context.Context, userID int64, expenses []core.Expense) ([]core.Expense, error) {
	saved := make([]core.Expense, 0, len(expenses))
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range expenses {
			s, err := insertExpense(ctx, tx, userID, e)
			if err != nil {
				return err
			}
			saved = append(saved, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ListExpenses returns the user's expenses dated within [start, end],
// ordered by date then insertion.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64, start, end civil.Date) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE user_id = ? AND date >= ? AND date <= ?
		 ORDER BY date, id`,
		userID, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return collectExpenses(rows)
}

// ReplaceDay deletes every expense of the user on date and inserts items
// in their place, atomically. It returns the removed rows and the new ones.
func (r *SQLiteRepository) ReplaceDay(ctx context.Context, userID int64, date civil.Date, items []core.Expense) (removed, saved []core.Expense, err error) {
	saved = make([]core.Expense, 0, len(items))
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND date = ? ORDER BY id`,
			userID, date.String())
		if err != nil {
			return fmt.Errorf("read day: %w", err)
		}
		if removed, err = collectExpenses(rows); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM expenses WHERE user_id = ? AND date = ?`, userID, date.String()); err != nil {
			return fmt.Errorf("clear day: %w", err)
		}
		for _, e := range items {
			e.Date = date
			s, err := insertExpense(ctx, tx, userID, e)
			if err != nil {
				return err
			}
			saved = append(saved, s)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return removed, saved, nil
}

// DeleteExpense removes one of the user's expenses and returns it.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	var deleted core.Expense
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		e, err := scanExpense(tx.QueryRowContext(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`, id, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get expense: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete expense: %w", err)
		}
		deleted = e
		return nil
	})
	return deleted, err
}

// GetExpense retrieves a single expense by ID regardless of owner.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return e, nil
}

// GetExpenseVersion returns the current sync version of an expense.
func (r *SQLiteRepository) GetExpenseVersion(ctx context.Context, id int64) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM expenses WHERE id = ?`, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get expense version: %w", err)
	}
	return v, nil
}

// GetPendingSyncExpenses returns expenses that still need to reach Google Sheets
func (r *SQLiteRepository) GetPendingSyncExpenses(ctx context.Context, limit int) ([]PendingSyncExpense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, version, created_at FROM expenses
		 WHERE sync_status IN ('pending', 'error')
		 ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync expenses: %w", err)
	}
	defer rows.Close()

	var out []PendingSyncExpense
	for rows.Next() {
		var (
			p   PendingSyncExpense
			raw any
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Version, &raw); err != nil {
			return nil, fmt.Errorf("scan pending expense: %w", err)
		}
		p.CreatedAt = scanTime(raw)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced marks an expense as successfully synced
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET sync_status = 'synced', synced_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	return expectOne(res)
}

// MarkSyncError marks an expense as having sync errors
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE expenses SET sync_status = 'error' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark expense sync error: %w", err)
	}
	return expectOne(res)
}

// SyncStatus returns the mirror state of an expense.
func (r *SQLiteRepository) SyncStatus(ctx context.Context, id int64) (string, error) {
	var s string
	err := r.db.QueryRowContext(ctx, `SELECT sync_status FROM expenses WHERE id = ?`, id).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get sync status: %w", err)
	}
	return s, nil
}
