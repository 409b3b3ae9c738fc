package sheets

import (
	"context"

	"cloud.google.com/go/civil"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseWriter mirrors a stored expense into a spreadsheet row.
	ExpenseWriter interface {
		Append(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	// ExpenseDeleter removes a mirrored row. The date selects the yearly sheet.
	ExpenseDeleter interface {
		DeleteExpense(ctx context.Context, id int64, date civil.Date) error
	}

	// Mirror is a spreadsheet that supports both operations.
	Mirror interface {
		ExpenseWriter
		ExpenseDeleter
	}
)
