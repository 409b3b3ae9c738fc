// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurring item dueness
// checking. Periodic and one-time recurrences each have a strategy that
// decides whether an item must be posted as an expense today.

package services

import (
	"fmt"

	"cloud.google.com/go/civil"

	"fintrack/internal/core"
	"fintrack/internal/recurrence"
)

// DuenessChecker is the strategy interface for checking if a recurring item is due.
type DuenessChecker interface {
	// IsDue returns true if the item occurs in today's month and its due
	// day has been reached.
	IsDue(item core.RecurringItem, today civil.Date) bool
}

// PeriodicChecker implements DuenessChecker for monthly, quarterly,
// half-yearly and yearly items.
type PeriodicChecker struct{}

// IsDue returns true once the start date's day of month, clamped to the
// month length, has been reached in an occurring month.
func (PeriodicChecker) IsDue(item core.RecurringItem, today civil.Date) bool {
	due, ok := recurrence.DueDateInMonth(item, today.Year, today.Month)
	return ok && !today.Before(due)
}

// OneTimeChecker implements DuenessChecker for one-time items.
type OneTimeChecker struct{}

// IsDue returns true from the start date until the end of its month.
func (OneTimeChecker) IsDue(item core.RecurringItem, today civil.Date) bool {
	start, err := core.ParseDate(item.StartDate)
	if err != nil {
		return false
	}
	if start.Year != today.Year || start.Month != today.Month {
		return false
	}
	return !today.Before(start) && recurrence.IsWithinActiveRange(item, today.Year, today.Month)
}

// duenessStrategies maps recurrences to their corresponding checkers.
var duenessStrategies = map[core.Recurrence]DuenessChecker{
	core.Monthly:    PeriodicChecker{},
	core.Quarterly:  PeriodicChecker{},
	core.HalfYearly: PeriodicChecker{},
	core.Yearly:     PeriodicChecker{},
	core.OneTime:    OneTimeChecker{},
}

// GetDuenessChecker returns the appropriate dueness checker for a recurrence.
// Returns an error if the recurrence is not supported.
func GetDuenessChecker(r core.Recurrence) (DuenessChecker, error) {
	checker, ok := duenessStrategies[r]
	if !ok {
		return nil, fmt.Errorf("unknown recurrence: %s", r)
	}
	return checker, nil
}

// RegisterDuenessChecker registers a checker for a new or existing recurrence.
func RegisterDuenessChecker(r core.Recurrence, checker DuenessChecker) {
	duenessStrategies[r] = checker
}
