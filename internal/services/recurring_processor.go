package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"fintrack/internal/log"
	"fintrack/internal/recurrence"
	"fintrack/internal/storage"
)

// RecurringProcessor books due recurring items as expenses.
type RecurringProcessor struct {
	storage        *storage.SQLiteRepository
	expenseService *ExpenseService
	logger         *log.Logger
}

// NewRecurringProcessor creates a new recurring item processor
func NewRecurringProcessor(storage *storage.SQLiteRepository, expenseService *ExpenseService, logger *log.Logger) *RecurringProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	return &RecurringProcessor{
		storage:        storage,
		expenseService: expenseService,
		logger:         logger.WithComponent(log.ComponentRecurring),
	}
}

// ProcessDueExpenses posts every item that is due in now's month and has
// not been posted for it yet. It returns the number of expenses created.
// Failures on single items are logged and skipped.
func (p *RecurringProcessor) ProcessDueExpenses(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil || p.expenseService == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	today := civil.DateOf(now)
	userIDs, err := p.storage.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	processed, checked := 0, 0
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		items, err := p.storage.ListRecurring(ctx, userID)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to load recurring items",
				log.FieldUserID, userID,
				log.FieldError, err)
			continue
		}

		for _, item := range items {
			checked++
			checker, err := GetDuenessChecker(item.Recurrence)
			if err != nil {
				p.logger.WarnContext(ctx, "Skipping recurring item",
					log.FieldRecurringID, item.ID,
					log.FieldError, err)
				continue
			}
			if !checker.IsDue(item, today) {
				continue
			}

			amount := recurrence.AmountForItemInMonth(item, today.Year, today.Month)
			if !amount.IsPositive() {
				continue
			}
			already, err := p.storage.HasPosting(ctx, userID, item.ID, today.Year, int(today.Month))
			if err != nil {
				p.logger.ErrorContext(ctx, "Failed to check posting",
					log.FieldRecurringID, item.ID,
					log.FieldError, err)
				continue
			}
			if already {
				continue
			}

			due, _ := recurrence.DueDateInMonth(item, today.Year, today.Month)
			saved, posted, err := p.expenseService.PostRecurring(ctx, userID, item, due, amount)
			if err != nil {
				p.logger.ErrorContext(ctx, "Failed to create expense from recurring item",
					log.FieldUserID, userID,
					log.FieldRecurringID, item.ID,
					log.FieldError, err)
				continue
			}
			if !posted {
				continue
			}

			processed++
			p.logger.InfoContext(ctx, "Created expense from recurring item",
				log.FieldUserID, userID,
				log.FieldRecurringID, item.ID,
				log.FieldExpenseID, saved.ID,
				log.FieldItemType, item.Type,
				log.FieldAmount, amount.String())
		}
	}

	p.logger.InfoContext(ctx, "Recurring processing complete",
		"processed", processed,
		"total_checked", checked,
		log.FieldDate, today.String())
	return processed, nil
}
