package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.ExpenseEvent
	err    error
}

func (f *fakePublisher) PublishExpenseEvent(_ context.Context, ev *amqp.ExpenseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

func (f *fakePublisher) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestUser(t *testing.T, repo *storage.SQLiteRepository, email string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), "Test", email, "hash")
	require.NoError(t, err)
	return u
}

func newExpenseService(t *testing.T, repo *storage.SQLiteRepository) (*ExpenseService, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	return NewExpenseService(repo, pub, time.Minute, log.Discard()), pub
}

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func expense(date civil.Date, amount string, cat core.Category, note string) core.Expense {
	return core.Expense{Date: date, Amount: dec(amount), Category: cat, Note: note}
}
