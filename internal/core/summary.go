package core

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DayGroup holds every expense booked on one calendar day.
type DayGroup struct {
	Date  civil.Date      `json:"date"`
	Items []Expense       `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// RangeSummary is the category breakdown of an inclusive date range.
type RangeSummary struct {
	Start      civil.Date       `json:"start"`
	End        civil.Date       `json:"end"`
	Total      decimal.Decimal  `json:"total"`
	ByCategory []CategoryAmount `json:"byCategory"`
}

// GroupByDay buckets expenses per date, days ascending, preserving the
// incoming order of items within a day.
func GroupByDay(expenses []Expense) []DayGroup {
	idx := make(map[civil.Date]int)
	var groups []DayGroup
	for _, e := range expenses {
		i, ok := idx[e.Date]
		if !ok {
			i = len(groups)
			idx[e.Date] = i
			groups = append(groups, DayGroup{Date: e.Date, Total: decimal.Zero})
		}
		groups[i].Items = append(groups[i].Items, e)
		groups[i].Total = groups[i].Total.Add(e.Amount)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Date.Before(groups[b].Date)
	})
	return groups
}

// FilterByRange keeps the groups whose date falls in [start, end].
func FilterByRange(groups []DayGroup, start, end civil.Date) []DayGroup {
	out := make([]DayGroup, 0, len(groups))
	for _, g := range groups {
		if g.Date.Before(start) || g.Date.After(end) {
			continue
		}
		out = append(out, g)
	}
	return out
}

// CategoryTotals sums every item of the groups per category.
func CategoryTotals(groups []DayGroup) map[Category]decimal.Decimal {
	totals := make(map[Category]decimal.Decimal)
	for _, g := range groups {
		for _, it := range g.Items {
			totals[it.Category] = totals[it.Category].Add(it.Amount)
		}
	}
	return totals
}

// Summarize builds a RangeSummary with categories in display order,
// omitting those with nothing spent.
func Summarize(groups []DayGroup, start, end civil.Date) RangeSummary {
	totals := CategoryTotals(FilterByRange(groups, start, end))
	s := RangeSummary{Start: start, End: end, Total: decimal.Zero, ByCategory: []CategoryAmount{}}
	for _, c := range Categories() {
		amt, ok := totals[c]
		if !ok || amt.IsZero() {
			continue
		}
		s.ByCategory = append(s.ByCategory, CategoryAmount{Category: c, Amount: amt})
		s.Total = s.Total.Add(amt)
	}
	return s
}
