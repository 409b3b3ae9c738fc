package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// MaxBulkExpenses caps the number of expenses accepted by one write.
const MaxBulkExpenses = 500

// EventPublisher announces expense changes to the sync worker.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
}

// ExpenseService orchestrates expense operations across SQLite and AMQP
type ExpenseService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	summaries *cache.TTLCache[core.RangeSummary]
	logger    *log.Logger
}

// NewExpenseService wires the service. publisher may be nil, in which case
// no events are sent and the sync worker relies on its sweep.
func NewExpenseService(storage *storage.SQLiteRepository, publisher EventPublisher, summaryTTL time.Duration, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExpenseService{
		storage:   storage,
		publisher: publisher,
		summaries: cache.NewTTLCache[core.RangeSummary](summaryTTL, 2*summaryTTL),
		logger:    logger.WithComponent(log.ComponentExpense),
	}
}

// ListMonth returns the user's expenses of one calendar month grouped by day.
func (s *ExpenseService) ListMonth(ctx context.Context, userID int64, year int, month time.Month) ([]core.DayGroup, error) {
	start, end, err := monthRange(year, month)
	if err != nil {
		return nil, err
	}
	return s.ListRange(ctx, userID, start, end)
}

// ListRange returns the user's expenses in [start, end] grouped by day.
func (s *ExpenseService) ListRange(ctx context.Context, userID int64, start, end civil.Date) ([]core.DayGroup, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	expenses, err := s.storage.ListExpenses(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	groups := core.GroupByDay(expenses)
	if groups == nil {
		groups = []core.DayGroup{}
	}
	return groups, nil
}

// GetDay returns the single day group for date. A day without expenses
// yields an empty group.
func (s *ExpenseService) GetDay(ctx context.Context, userID int64, date civil.Date) (core.DayGroup, error) {
	if !date.IsValid() {
		return core.DayGroup{}, core.ErrInvalidDate
	}
	expenses, err := s.storage.ListExpenses(ctx, userID, date, date)
	if err != nil {
		return core.DayGroup{}, fmt.Errorf("get day: %w", err)
	}
	return dayGroup(date, expenses), nil
}

// AddBulk validates and stores every expense in one transaction.
func (s *ExpenseService) AddBulk(ctx context.Context, userID int64, expenses []core.Expense) ([]core.Expense, error) {
	if len(expenses) == 0 {
		return nil, core.ErrNoExpenses
	}
	if len(expenses) > MaxBulkExpenses {
		return nil, core.ErrTooManyExpenses
	}

	prepared := make([]core.Expense, len(expenses))
	for i, e := range expenses {
		p, err := prepareExpense(e)
		if err != nil {
			return nil, fmt.Errorf("expense %d: %w", i+1, err)
		}
		prepared[i] = p
	}

	saved, err := s.storage.InsertExpenses(ctx, userID, prepared)
	if err != nil {
		return nil, fmt.Errorf("save expenses: %w", err)
	}

	s.invalidate(userID)
	for _, e := range saved {
		s.publish(ctx, amqp.EventExpenseCreated, e)
	}

	s.logger.InfoContext(ctx, "Expenses added",
		log.FieldUserID, userID,
		log.FieldCount, len(saved))
	return saved, nil
}

// ReplaceDay swaps every expense on date for items atomically. Item dates
// are forced to date.
func (s *ExpenseService) ReplaceDay(ctx context.Context, userID int64, date civil.Date, items []core.Expense) (core.DayGroup, error) {
	if !date.IsValid() {
		return core.DayGroup{}, core.ErrInvalidDate
	}
	if len(items) > MaxBulkExpenses {
		return core.DayGroup{}, core.ErrTooManyExpenses
	}

	prepared := make([]core.Expense, len(items))
	for i, e := range items {
		e.Date = date
		p, err := prepareExpense(e)
		if err != nil {
			return core.DayGroup{}, fmt.Errorf("expense %d: %w", i+1, err)
		}
		prepared[i] = p
	}

	removed, saved, err := s.storage.ReplaceDay(ctx, userID, date, prepared)
	if err != nil {
		return core.DayGroup{}, fmt.Errorf("replace day: %w", err)
	}

	s.invalidate(userID)
	for _, e := range removed {
		s.publish(ctx, amqp.EventExpenseDeleted, e)
	}
	for _, e := range saved {
		s.publish(ctx, amqp.EventExpenseCreated, e)
	}

	s.logger.InfoContext(ctx, "Day replaced",
		log.FieldUserID, userID,
		log.FieldDate, date.String(),
		"removed", len(removed),
		log.FieldCount, len(saved))
	return dayGroup(date, saved), nil
}

// Delete removes one of the user's expenses.
func (s *ExpenseService) Delete(ctx context.Context, userID, id int64) error {
	deleted, err := s.storage.DeleteExpense(ctx, userID, id)
	if err != nil {
		return err
	}

	s.invalidate(userID)
	s.publish(ctx, amqp.EventExpenseDeleted, deleted)

	s.logger.InfoContext(ctx, "Expense deleted",
		log.FieldUserID, userID,
		log.FieldExpenseID, id)
	return nil
}

// Summary returns category totals for [start, end]. Results are cached per
// user and range until the next write.
func (s *ExpenseService) Summary(ctx context.Context, userID int64, start, end civil.Date) (core.RangeSummary, error) {
	if err := checkRange(start, end); err != nil {
		return core.RangeSummary{}, err
	}
	key := cache.Key("expenses", userID, "summary", start, end)
	return s.summaries.GetOrLoad(ctx, key, func(ctx context.Context) (core.RangeSummary, error) {
		groups, err := s.ListRange(ctx, userID, start, end)
		if err != nil {
			return core.RangeSummary{}, err
		}
		return core.Summarize(groups, start, end), nil
	})
}

// PostRecurring books one month of a recurring item as an expense on date.
// posted is false when that month had already been booked.
func (s *ExpenseService) PostRecurring(ctx context.Context, userID int64, item core.RecurringItem, date civil.Date, amount decimal.Decimal) (core.Expense, bool, error) {
	e, err := prepareExpense(core.Expense{
		Date:     date,
		Amount:   amount,
		Category: item.Type.ExpenseCategory(),
		Note:     truncate(item.Label, 200),
	})
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("recurring %s: %w", item.ID, err)
	}

	saved, posted, err := s.storage.PostRecurring(ctx, userID, item.ID, date.Year, int(date.Month), e)
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("post recurring: %w", err)
	}
	if !posted {
		return core.Expense{}, false, nil
	}

	s.invalidate(userID)
	s.publish(ctx, amqp.EventExpenseCreated, saved)
	return saved, true, nil
}

func (s *ExpenseService) invalidate(userID int64) {
	s.summaries.DeletePrefix(cache.Key("expenses", userID) + ":")
}

func (s *ExpenseService) publish(ctx context.Context, eventType string, e core.Expense) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping event",
			log.FieldExpenseID, e.ID)
		return
	}

	version := int64(1)
	if eventType == amqp.EventExpenseDeleted {
		version = 0
	}
	ev := amqp.NewExpenseEvent(eventType, e.ID, e.UserID, version, e.Date.String())
	if err := s.publisher.PublishExpenseEvent(ctx, ev); err != nil {
		// The row is stored; the sync sweep picks it up later.
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldExpenseID, e.ID,
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
	}
}

func prepareExpense(e core.Expense) (core.Expense, error) {
	e.Note = sanitizeText(e.Note)
	e.Amount = e.Amount.Round(2)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func dayGroup(date civil.Date, expenses []core.Expense) core.DayGroup {
	g := core.DayGroup{Date: date, Items: []core.Expense{}, Total: decimal.Zero}
	for _, e := range expenses {
		g.Items = append(g.Items, e)
		g.Total = g.Total.Add(e.Amount)
	}
	return g
}

func monthRange(year int, month time.Month) (civil.Date, civil.Date, error) {
	if month < time.January || month > time.December {
		return civil.Date{}, civil.Date{}, core.ErrInvalidMonth
	}
	start := civil.Date{Year: year, Month: month, Day: 1}
	end := civil.DateOf(time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC))
	return start, end, nil
}

func checkRange(start, end civil.Date) error {
	if !start.IsValid() || !end.IsValid() {
		return core.ErrInvalidDate
	}
	if start.After(end) {
		return core.ErrInvalidDateRange
	}
	return nil
}
