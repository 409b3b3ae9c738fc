// Package recurrence computes when recurring items fall due and how much
// they cost in a given month.
//
// Every function here is pure: inputs are never mutated, the wall clock is
// never read and nothing is returned as an error. An item whose dates cannot
// be parsed simply never occurs.
package recurrence

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// searchHorizon bounds how far NextDueDate looks ahead, in months.
const searchHorizon = 60

var periodMonths = map[core.Recurrence]int{
	core.Monthly:    1,
	core.Quarterly:  3,
	core.HalfYearly: 6,
	core.Yearly:     12,
}

var half = decimal.New(5, -1)

// growthPrecision is the number of decimal places kept in a compounded
// step-up factor.
const growthPrecision = 16

// PeriodMonths returns the number of months between two occurrences of a
// periodic recurrence and false for one-time or unknown recurrences.
func PeriodMonths(r core.Recurrence) (int, bool) {
	p, ok := periodMonths[r]
	return p, ok
}

// MonthsBetween counts whole calendar months from a to b, ignoring the day.
// The result is negative when b is in an earlier month than a.
func MonthsBetween(a, b civil.Date) int {
	return (b.Year-a.Year)*12 + (int(b.Month) - int(a.Month))
}

// IsWithinActiveRange reports whether the item's active period overlaps the
// given month at all.
func IsWithinActiveRange(item core.RecurringItem, year int, month time.Month) bool {
	start, ok := parse(item.StartDate)
	if !ok {
		return false
	}
	first, last := monthBounds(year, month)
	if last.Before(start) {
		return false
	}
	if end, ok := parse(item.EndDate); ok && first.After(end) {
		return false
	}
	return true
}

// OccursInMonth reports whether the item's cadence lands on the given month.
// The active range is not considered.
func OccursInMonth(item core.RecurringItem, year int, month time.Month) bool {
	start, ok := parse(item.StartDate)
	if !ok {
		return false
	}
	first, _ := monthBounds(year, month)

	if item.Recurrence == core.OneTime {
		return start.Year == first.Year && start.Month == first.Month
	}

	period, ok := periodMonths[item.Recurrence]
	if !ok {
		return false
	}
	diff := MonthsBetween(start, first)
	return diff >= 0 && diff%period == 0
}

// StepUpCycleCount returns how many escalation cycles have fully elapsed by
// the given month.
func StepUpCycleCount(item core.RecurringItem, year int, month time.Month) int {
	if _, ok := parse(item.StartDate); !ok {
		return 0
	}
	su := item.StepUp
	if su == nil || !su.Enabled {
		return 0
	}

	fromStr := su.From
	if fromStr == "" {
		fromStr = item.StartDate
	}
	from, ok := parse(fromStr)
	if !ok {
		return 0
	}

	every := 6
	if su.Every == core.Every12Months {
		every = 12
	}

	first, _ := monthBounds(year, month)
	diff := MonthsBetween(from, first)
	if diff < 0 {
		return 0
	}
	return diff / every
}

// ApplyStepUp escalates base by the given number of cycles. Amount mode adds
// value per cycle. Percent mode compounds value% per cycle and rounds half up
// to a whole currency unit.
func ApplyStepUp(base decimal.Decimal, su *core.StepUp, cycles int) decimal.Decimal {
	if su == nil || !su.Enabled || cycles <= 0 {
		return base
	}
	switch su.Mode {
	case core.StepUpAmount:
		return base.Add(su.Value.Mul(decimal.NewFromInt(int64(cycles))))
	case core.StepUpPercent:
		factor := decimal.NewFromInt(1).Add(su.Value.Shift(-2))
		growth, err := factor.PowWithPrecision(decimal.NewFromInt(int64(cycles)), growthPrecision)
		if err != nil {
			return base
		}
		return base.Mul(growth).Add(half).Floor()
	default:
		return base
	}
}

// AmountForItemInMonth is what the item costs in the given month: zero unless
// it is active and occurs then, otherwise its stepped-up amount.
func AmountForItemInMonth(item core.RecurringItem, year int, month time.Month) decimal.Decimal {
	if !IsWithinActiveRange(item, year, month) {
		return decimal.Zero
	}
	if !OccursInMonth(item, year, month) {
		return decimal.Zero
	}
	cycles := StepUpCycleCount(item, year, month)
	return ApplyStepUp(item.Amount, item.StepUp, cycles)
}

// AmountForMonth sums AmountForItemInMonth over items. An empty typeFilter
// includes every type.
func AmountForMonth(items []core.RecurringItem, year int, month time.Month, typeFilter core.ItemType) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if typeFilter != "" && it.Type != typeFilter {
			continue
		}
		sum = sum.Add(AmountForItemInMonth(it, year, month))
	}
	return sum
}

// MonthlyTotals returns the twelve monthly totals of a year; index 0 is January.
func MonthlyTotals(items []core.RecurringItem, year int) [12]decimal.Decimal {
	return MonthlyTotalsByType(items, year, "")
}

// MonthlyTotalsByType is MonthlyTotals restricted to one item type.
func MonthlyTotalsByType(items []core.RecurringItem, year int, typ core.ItemType) [12]decimal.Decimal {
	var totals [12]decimal.Decimal
	for m := time.January; m <= time.December; m++ {
		totals[m-1] = AmountForMonth(items, year, m, typ)
	}
	return totals
}

// MonthAmount is one entry of a forecast strip.
type MonthAmount struct {
	Year   int             `json:"year"`
	Month  time.Month      `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// Forecast returns n consecutive monthly totals starting at the given month,
// rolling over into following years.
func Forecast(items []core.RecurringItem, year int, month time.Month, n int, typeFilter core.ItemType) []MonthAmount {
	if n <= 0 {
		return []MonthAmount{}
	}
	y, m := normalize(year, month)
	out := make([]MonthAmount, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, MonthAmount{Year: y, Month: m, Amount: AmountForMonth(items, y, m, typeFilter)})
		y, m = normalize(y, m+1)
	}
	return out
}

// NextDueDate finds the first occurrence on or after the month containing
// from. The returned date keeps the start date's day of month, clamped to the
// length of the target month. It may precede from when the due day of the
// current month has already passed. ok is false when no occurrence exists
// within five years, before the end date, or at all.
func NextDueDate(item core.RecurringItem, from civil.Date) (due civil.Date, ok bool) {
	start, ok := parse(item.StartDate)
	if !ok {
		return civil.Date{}, false
	}
	end, hasEnd := parse(item.EndDate)
	y, m := normalize(from.Year, from.Month)

	if item.Recurrence == core.OneTime {
		first, _ := monthBounds(y, m)
		if start.Before(first) {
			return civil.Date{}, false
		}
		return start, true
	}

	if _, ok := periodMonths[item.Recurrence]; !ok {
		return civil.Date{}, false
	}

	for i := 0; i < searchHorizon; i++ {
		if OccursInMonth(item, y, m) && IsWithinActiveRange(item, y, m) {
			return dayInMonth(y, m, start.Day), true
		}
		y, m = normalize(y, m+1)
		if first, _ := monthBounds(y, m); hasEnd && first.After(end) {
			break
		}
	}
	return civil.Date{}, false
}

// DueDateInMonth returns the day the item falls due within the given month,
// using the start date's day of month clamped to the month length. ok is
// false when the item does not occur in that month.
func DueDateInMonth(item core.RecurringItem, year int, month time.Month) (civil.Date, bool) {
	y, m := normalize(year, month)
	if !OccursInMonth(item, y, m) || !IsWithinActiveRange(item, y, m) {
		return civil.Date{}, false
	}
	start, _ := parse(item.StartDate)
	return dayInMonth(y, m, start.Day), true
}

func parse(s string) (civil.Date, bool) {
	if s == "" {
		return civil.Date{}, false
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return civil.Date{}, false
	}
	return d, true
}

// normalize folds an out-of-range month into the neighbouring years.
func normalize(year int, month time.Month) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}

func monthBounds(year int, month time.Month) (first, last civil.Date) {
	y, m := normalize(year, month)
	first = civil.Date{Year: y, Month: m, Day: 1}
	last = civil.Date{Year: y, Month: m, Day: daysIn(y, m)}
	return first, last
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dayInMonth(year int, month time.Month, day int) civil.Date {
	if n := daysIn(year, month); day > n {
		day = n
	}
	return civil.Date{Year: year, Month: month, Day: day}
}
