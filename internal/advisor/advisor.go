// Package advisor measures spending over a date range against a 50/30/20
// budget built from the user's monthly salary.
package advisor

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Finding codes.
const (
	FindingNoIncome       = "no_income"
	FindingOverspending   = "overspending"
	FindingSavings        = "savings"
	FindingInvestingBelow = "investing_below_target"
	FindingWantsOverCap   = "wants_over_cap"
	FindingNeedsOverCap   = "needs_over_cap"
	FindingEmergencyFund  = "emergency_fund"
)

// Savings health bands.
const (
	HealthGood = "good"
	HealthWarn = "warn"
	HealthBad  = "bad"
)

var (
	pctNeeds  = decimal.RequireFromString("0.5")
	pctWants  = decimal.RequireFromString("0.3")
	pctInvest = decimal.RequireFromString("0.2")
	pctWarn   = decimal.RequireFromString("0.1")
	twelve    = decimal.NewFromInt(12)
)

// Finding is one piece of advice.
type Finding struct {
	Code    string          `json:"code"`
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message"`
}

// Plan holds the 50/30/20 caps prorated to the range.
type Plan struct {
	NeedsCap  decimal.Decimal `json:"needsCap"`
	WantsCap  decimal.Decimal `json:"wantsCap"`
	InvestMin decimal.Decimal `json:"investMin"`
}

// Report is the full analysis of a range.
type Report struct {
	Start             civil.Date      `json:"start"`
	End               civil.Date      `json:"end"`
	Income            decimal.Decimal `json:"income"`
	Spent             decimal.Decimal `json:"spent"`
	Savings           decimal.Decimal `json:"savings"`
	SavingsRate       decimal.Decimal `json:"savingsRate"`
	SavingsHealth     string          `json:"savingsHealth"`
	Needs             decimal.Decimal `json:"needs"`
	Wants             decimal.Decimal `json:"wants"`
	Investing         decimal.Decimal `json:"investing"`
	Debt              decimal.Decimal `json:"debt"`
	Plan              Plan            `json:"plan"`
	EmergencyFundLow  decimal.Decimal `json:"emergencyFundLow"`
	EmergencyFundHigh decimal.Decimal `json:"emergencyFundHigh"`
	EmergencyMonthly  decimal.Decimal `json:"emergencyMonthly"`
	Findings          []Finding       `json:"findings"`
}

// ProratedIncome spreads a monthly salary over [start, end]: each overlapped
// month contributes salary * overlapDays / daysInMonth.
func ProratedIncome(monthlySalary decimal.Decimal, start, end civil.Date) decimal.Decimal {
	if !monthlySalary.IsPositive() || end.Before(start) {
		return decimal.Zero
	}
	total := decimal.Zero
	cursor := civil.Date{Year: start.Year, Month: start.Month, Day: 1}
	for !cursor.After(end) {
		days := daysIn(cursor.Year, cursor.Month)
		monthEnd := civil.Date{Year: cursor.Year, Month: cursor.Month, Day: days}

		segStart := cursor
		if start.After(segStart) {
			segStart = start
		}
		segEnd := monthEnd
		if end.Before(segEnd) {
			segEnd = end
		}
		if !segEnd.Before(segStart) {
			overlap := int64(segEnd.DaysSince(segStart) + 1)
			total = total.Add(monthlySalary.Mul(decimal.NewFromInt(overlap)).Div(decimal.NewFromInt(int64(days))))
		}
		cursor = monthEnd.AddDays(1)
	}
	return total.Round(2)
}

// Analyze builds the report from per-category spend and the prorated income.
// Other is split evenly between needs and wants.
func Analyze(start, end civil.Date, totals map[core.Category]decimal.Decimal, income decimal.Decimal) Report {
	get := func(c core.Category) decimal.Decimal { return totals[c] }

	spent := decimal.Zero
	for _, v := range totals {
		spent = spent.Add(v)
	}
	otherHalf := decimal.Max(decimal.Zero, get(core.CategoryOther).Div(decimal.NewFromInt(2)))

	r := Report{
		Start:     start,
		End:       end,
		Income:    income,
		Spent:     spent,
		Investing: get(core.CategoryMutualFund).Add(get(core.CategoryStock)),
		Debt:      get(core.CategoryEMI).Add(get(core.CategoryCreditCard)),
		Needs: get(core.CategoryRentBills).
			Add(get(core.CategoryGrocery)).
			Add(get(core.CategoryEMI)).
			Add(get(core.CategoryCreditCard)).
			Add(otherHalf),
		Wants:    get(core.CategoryShopping).Add(otherHalf),
		Savings:  decimal.Max(decimal.Zero, income.Sub(spent)),
		Findings: []Finding{},
	}
	r.SavingsRate = decimal.Zero
	if income.IsPositive() {
		r.SavingsRate = r.Savings.Div(income).Round(4)
	}
	r.SavingsHealth = health(r.SavingsRate)
	r.Plan = Plan{
		NeedsCap:  income.Mul(pctNeeds),
		WantsCap:  income.Mul(pctWants),
		InvestMin: income.Mul(pctInvest),
	}

	r.EmergencyFundLow = spent.Mul(decimal.NewFromInt(3))
	r.EmergencyFundHigh = spent.Mul(decimal.NewFromInt(6))
	r.EmergencyMonthly = r.EmergencyFundLow.Div(twelve).Ceil()

	if !income.IsPositive() {
		r.add(FindingNoIncome, decimal.Zero, "Provide a valid monthly salary to enable range-based analysis.")
		return r
	}

	if over := spent.Sub(income); over.IsPositive() {
		r.add(FindingOverspending, over,
			fmt.Sprintf("Overspending by %s in this range. Reduce wants by 10-20%% and prioritize debt paydown.", core.FormatAmount(over)))
	} else {
		r.add(FindingSavings, r.Savings,
			fmt.Sprintf("Savings in this range: %s (%s%%). Keep at least 20%% consistently.",
				core.FormatAmount(r.Savings), r.SavingsRate.Mul(decimal.NewFromInt(100)).Round(0)))
	}
	if r.Investing.LessThan(r.Plan.InvestMin) {
		gap := r.Plan.InvestMin.Sub(r.Investing)
		r.add(FindingInvestingBelow, gap,
			fmt.Sprintf("Investments below 20%% target for the range. Add about %s to SIPs to hit the floor.", core.FormatAmount(gap)))
	}
	if r.Wants.GreaterThan(r.Plan.WantsCap) {
		r.add(FindingWantsOverCap, r.Wants.Sub(r.Plan.WantsCap),
			fmt.Sprintf("Wants at %s exceed the 30%% cap (%s) for this range.", core.FormatAmount(r.Wants), core.FormatAmount(r.Plan.WantsCap)))
	}
	if r.Needs.GreaterThan(r.Plan.NeedsCap) {
		r.add(FindingNeedsOverCap, r.Needs.Sub(r.Plan.NeedsCap),
			fmt.Sprintf("Essentials at %s exceed the 50%% guideline (%s) for this range.", core.FormatAmount(r.Needs), core.FormatAmount(r.Plan.NeedsCap)))
	}
	r.add(FindingEmergencyFund, r.EmergencyFundLow,
		fmt.Sprintf("Build an emergency fund of %s to %s (3-6x expenses). Save about %s/mo.",
			core.FormatAmount(r.EmergencyFundLow), core.FormatAmount(r.EmergencyFundHigh), core.FormatAmount(r.EmergencyMonthly)))
	return r
}

func (r *Report) add(code string, amount decimal.Decimal, msg string) {
	r.Findings = append(r.Findings, Finding{Code: code, Amount: amount, Message: msg})
}

func health(rate decimal.Decimal) string {
	switch {
	case rate.GreaterThanOrEqual(pctInvest):
		return HealthGood
	case rate.GreaterThanOrEqual(pctWarn):
		return HealthWarn
	default:
		return HealthBad
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
