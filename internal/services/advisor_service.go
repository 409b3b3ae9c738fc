package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"fintrack/internal/advisor"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// AdvisorService runs the budget advisor over a user's stored expenses.
type AdvisorService struct {
	storage  *storage.SQLiteRepository
	expenses *ExpenseService
	logger   *log.Logger
}

func NewAdvisorService(storage *storage.SQLiteRepository, expenses *ExpenseService, logger *log.Logger) *AdvisorService {
	if logger == nil {
		logger = log.Discard()
	}
	return &AdvisorService{
		storage:  storage,
		expenses: expenses,
		logger:   logger.WithComponent(log.ComponentAdvisor),
	}
}

// Analyze measures spending in [start, end] against the profile salary
// prorated to the same range.
func (s *AdvisorService) Analyze(ctx context.Context, userID int64, start, end civil.Date) (advisor.Report, error) {
	user, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		return advisor.Report{}, fmt.Errorf("load profile: %w", err)
	}
	summary, err := s.expenses.Summary(ctx, userID, start, end)
	if err != nil {
		return advisor.Report{}, err
	}

	totals := make(map[core.Category]decimal.Decimal, len(summary.ByCategory))
	for _, c := range summary.ByCategory {
		totals[c.Category] = c.Amount
	}
	income := advisor.ProratedIncome(user.MonthlySalary, start, end)
	report := advisor.Analyze(start, end, totals, income)

	s.logger.DebugContext(ctx, "Advisor report built",
		log.FieldUserID, userID,
		"findings", len(report.Findings))
	return report, nil
}
