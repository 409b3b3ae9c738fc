package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func TestExpenseService_AddBulkAndList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "list@example.com")
	svc, pub := newExpenseService(t, repo)

	saved, err := svc.AddBulk(ctx, user.ID, []core.Expense{
		expense(day(2025, 3, 10), "120.505", core.CategoryGrocery, "<b>veg</b> & fruit"),
		expense(day(2025, 3, 2), "2000", core.CategoryRentBills, "rent"),
		expense(day(2025, 3, 10), "30", core.CategoryShopping, ""),
	})
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Equal(t, "veg & fruit", saved[0].Note)
	assert.True(t, saved[0].Amount.Equal(dec("120.51")))
	assert.Equal(t, []string{amqp.EventExpenseCreated, amqp.EventExpenseCreated, amqp.EventExpenseCreated}, pub.types())

	groups, err := svc.ListMonth(ctx, user.ID, 2025, time.March)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, day(2025, 3, 2), groups[0].Date)
	assert.Len(t, groups[1].Items, 2)
	assert.True(t, groups[1].Total.Equal(dec("150.51")))

	empty, err := svc.ListMonth(ctx, user.ID, 2025, time.April)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestExpenseService_Validation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "valid@example.com")
	svc, pub := newExpenseService(t, repo)

	tests := []struct {
		name     string
		expenses []core.Expense
		wantErr  error
	}{
		{"empty batch", nil, core.ErrNoExpenses},
		{"zero amount", []core.Expense{expense(day(2025, 1, 1), "0", core.CategoryOther, "")}, core.ErrInvalidAmount},
		{"unknown category", []core.Expense{expense(day(2025, 1, 1), "1", "travel", "")}, core.ErrInvalidCategory},
		{"missing date", []core.Expense{{Amount: dec("1"), Category: core.CategoryOther}}, core.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddBulk(ctx, user.ID, tt.expenses)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("too many", func(t *testing.T) {
		batch := make([]core.Expense, MaxBulkExpenses+1)
		for i := range batch {
			batch[i] = expense(day(2025, 1, 1), "1", core.CategoryOther, "")
		}
		_, err := svc.AddBulk(ctx, user.ID, batch)
		assert.ErrorIs(t, err, core.ErrTooManyExpenses)
	})

	t.Run("one bad item rejects the batch", func(t *testing.T) {
		_, err := svc.AddBulk(ctx, user.ID, []core.Expense{
			expense(day(2025, 1, 1), "10", core.CategoryOther, ""),
			expense(day(2025, 1, 1), "-1", core.CategoryOther, ""),
		})
		require.Error(t, err)
		groups, err := svc.ListMonth(ctx, user.ID, 2025, time.January)
		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	_, err := svc.ListMonth(ctx, user.ID, 2025, 13)
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
	_, err = svc.ListRange(ctx, user.ID, day(2025, 2, 1), day(2025, 1, 1))
	assert.ErrorIs(t, err, core.ErrInvalidDateRange)
	assert.Empty(t, pub.types())
}

func TestExpenseService_ReplaceDay(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "replace@example.com")
	svc, pub := newExpenseService(t, repo)

	_, err := svc.AddBulk(ctx, user.ID, []core.Expense{
		expense(day(2025, 5, 4), "10", core.CategoryGrocery, "a"),
		expense(day(2025, 5, 4), "20", core.CategoryGrocery, "b"),
	})
	require.NoError(t, err)
	pub.reset()

	g, err := svc.ReplaceDay(ctx, user.ID, day(2025, 5, 4), []core.Expense{
		expense(day(2000, 1, 1), "15", core.CategoryShopping, "c"),
	})
	require.NoError(t, err)
	assert.Equal(t, day(2025, 5, 4), g.Date)
	require.Len(t, g.Items, 1)
	assert.Equal(t, day(2025, 5, 4), g.Items[0].Date)
	assert.True(t, g.Total.Equal(dec("15")))
	assert.Equal(t, []string{amqp.EventExpenseDeleted, amqp.EventExpenseDeleted, amqp.EventExpenseCreated}, pub.types())

	cleared, err := svc.ReplaceDay(ctx, user.ID, day(2025, 5, 4), nil)
	require.NoError(t, err)
	assert.Empty(t, cleared.Items)
	assert.True(t, cleared.Total.IsZero())

	got, err := svc.GetDay(ctx, user.ID, day(2025, 5, 4))
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestExpenseService_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := newTestUser(t, repo, "alice@example.com")
	bob := newTestUser(t, repo, "bob@example.com")
	svc, pub := newExpenseService(t, repo)

	saved, err := svc.AddBulk(ctx, alice.ID, []core.Expense{expense(day(2025, 6, 1), "9", core.CategoryOther, "")})
	require.NoError(t, err)
	pub.reset()

	err = svc.Delete(ctx, bob.ID, saved[0].ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, pub.types())

	require.NoError(t, svc.Delete(ctx, alice.ID, saved[0].ID))
	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.EventExpenseDeleted, pub.events[0].Type)
	assert.Equal(t, "2025-06-01", pub.events[0].Date)
}

func TestExpenseService_SummaryCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "summary@example.com")
	svc, _ := newExpenseService(t, repo)

	_, err := svc.AddBulk(ctx, user.ID, []core.Expense{
		expense(day(2025, 7, 1), "100", core.CategoryGrocery, ""),
		expense(day(2025, 7, 2), "50", core.CategoryStock, ""),
	})
	require.NoError(t, err)

	start, end := day(2025, 7, 1), day(2025, 7, 31)
	s, err := svc.Summary(ctx, user.ID, start, end)
	require.NoError(t, err)
	assert.True(t, s.Total.Equal(dec("150")))
	require.Len(t, s.ByCategory, 2)
	assert.Equal(t, core.CategoryStock, s.ByCategory[0].Category)

	_, err = svc.AddBulk(ctx, user.ID, []core.Expense{expense(day(2025, 7, 3), "25", core.CategoryGrocery, "")})
	require.NoError(t, err)

	s, err = svc.Summary(ctx, user.ID, start, end)
	require.NoError(t, err)
	assert.True(t, s.Total.Equal(dec("175")), "summary must reflect the write, got %s", s.Total)
}

func TestExpenseService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "pubfail@example.com")
	svc, pub := newExpenseService(t, repo)
	pub.err = errors.New("broker down")

	saved, err := svc.AddBulk(ctx, user.ID, []core.Expense{expense(day(2025, 8, 1), "5", core.CategoryOther, "")})
	require.NoError(t, err)

	status, err := repo.SyncStatus(ctx, saved[0].ID)
	require.NoError(t, err)
	assert.Equal(t, storage.SyncPending, status)
}

func TestExpenseService_NilPublisher(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "nopub@example.com")
	svc := NewExpenseService(repo, nil, time.Minute, nil)

	_, err := svc.AddBulk(ctx, user.ID, []core.Expense{expense(day(2025, 8, 1), "5", core.CategoryOther, "")})
	assert.NoError(t, err)
}

func TestExpenseService_PostRecurring(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "post@example.com")
	svc, pub := newExpenseService(t, repo)

	item := core.RecurringItem{
		ID: "loan", Type: core.EMI, Label: "Car loan", Amount: dec("12000"),
		Recurrence: core.Monthly, StartDate: "2025-01-05",
	}
	require.NoError(t, repo.CreateRecurring(ctx, user.ID, item))

	e, posted, err := svc.PostRecurring(ctx, user.ID, item, day(2025, 9, 5), dec("12000"))
	require.NoError(t, err)
	require.True(t, posted)
	assert.Equal(t, core.CategoryEMI, e.Category)
	assert.Equal(t, core.SourceRecurring, e.Source)
	assert.Equal(t, "loan", e.RecurringID)
	assert.Equal(t, "Car loan", e.Note)

	_, posted, err = svc.PostRecurring(ctx, user.ID, item, day(2025, 9, 5), dec("12000"))
	require.NoError(t, err)
	assert.False(t, posted)
	assert.Len(t, pub.types(), 1)
}
