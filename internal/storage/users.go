package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fintrack/internal/core"
)

const userColumns = `id, name, email, monthly_salary_cents, created_at`

func scanUser(row interface{ Scan(...any) error }) (core.User, error) {
	var (
		u        core.User
		salary   int64
		rawStamp any
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &salary, &rawStamp); err != nil {
		return core.User{}, err
	}
	u.MonthlySalary = core.FromCents(salary)
	u.CreatedAt = scanTime(rawStamp)
	return u, nil
}

// CreateUser stores a new account. Emails are compared case-insensitively.
func (r *SQLiteRepository) CreateUser(ctx context.Context, name, email, passwordHash string) (core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash) VALUES (?, ?, ?)`,
		name, strings.ToLower(email), passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user id: %w", err)
	}
	return r.GetUser(ctx, id)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user and the stored password hash.
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, string, error) {
	var hash string
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE email = ?`, strings.ToLower(email))

	var (
		u        core.User
		salary   int64
		rawStamp any
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &salary, &rawStamp, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, "", ErrNotFound
	}
	if err != nil {
		return core.User{}, "", fmt.Errorf("get user by email: %w", err)
	}
	u.MonthlySalary = core.FromCents(salary)
	u.CreatedAt = scanTime(rawStamp)
	return u, hash, nil
}

func (r *SQLiteRepository) GetPasswordHash(ctx context.Context, id int64) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get password hash: %w", err)
	}
	return hash, nil
}

func (r *SQLiteRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res)
}

// UpdateProfile changes the display name and monthly salary.
func (r *SQLiteRepository) UpdateProfile(ctx context.Context, u core.User) (core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, monthly_salary_cents = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		u.Name, core.ToCents(u.MonthlySalary), u.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}
	if err := expectOne(res); err != nil {
		return core.User{}, err
	}
	return r.GetUser(ctx, u.ID)
}

// ListUserIDs returns every user that owns at least one recurring item.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM recurring_items ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
