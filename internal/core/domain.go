package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	EMI   ItemType = "EMI"
	SIP   ItemType = "SIP"
	Fixed ItemType = "Fixed"
)

const (
	Monthly    Recurrence = "monthly"
	Quarterly  Recurrence = "quarterly"
	HalfYearly Recurrence = "half-yearly"
	Yearly     Recurrence = "yearly"
	OneTime    Recurrence = "one-time"
)

const (
	StepUpAmount  StepUpMode = "amount"
	StepUpPercent StepUpMode = "percent"

	Every6Months  StepUpEvery = "6m"
	Every12Months StepUpEvery = "12m"
)

const (
	CategoryMutualFund Category = "mutualFund"
	CategoryStock      Category = "stock"
	CategoryShopping   Category = "shopping"
	CategoryGrocery    Category = "grocery"
	CategoryRentBills  Category = "rentBills"
	CategoryEMI        Category = "emi"
	CategoryCreditCard Category = "creditCard"
	CategoryOther      Category = "other"
)

const (
	SourceManual    = "manual"
	SourceRecurring = "recurring"
)

// DateLayout is the wire format of every calendar date.
const DateLayout = "2006-01-02"

type (
	ItemType    string
	Recurrence  string
	StepUpMode  string
	StepUpEvery string
	Category    string

	// StepUp escalates a recurring amount at a fixed cadence.
	StepUp struct {
		Enabled bool            `json:"enabled" toml:"enabled"`
		Mode    StepUpMode      `json:"mode" toml:"mode"`
		Every   StepUpEvery     `json:"every" toml:"every"`
		Value   decimal.Decimal `json:"value" toml:"value"`
		From    string          `json:"from,omitempty" toml:"from"`
	}

	// RecurringItem is a user-defined commitment such as a loan installment,
	// an investment plan or a fixed bill. Dates are kept exactly as submitted
	// ("YYYY-MM-DD"); the recurrence engine degrades on anything unparseable.
	RecurringItem struct {
		ID         string          `json:"id" toml:"id"`
		Type       ItemType        `json:"type" toml:"type"`
		Label      string          `json:"label" toml:"label"`
		Amount     decimal.Decimal `json:"amount" toml:"amount"`
		Recurrence Recurrence      `json:"recurrence" toml:"recurrence"`
		StartDate  string          `json:"startDate" toml:"start_date"`
		EndDate    string          `json:"endDate,omitempty" toml:"end_date"`
		StepUp     *StepUp         `json:"stepUp,omitempty" toml:"step_up"`
	}

	Expense struct {
		ID          int64           `json:"id"`
		UserID      int64           `json:"-"`
		Date        civil.Date      `json:"date"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
		Note        string          `json:"note"`
		Source      string          `json:"source,omitempty"`
		RecurringID string          `json:"recurringId,omitempty"`
	}

	User struct {
		ID            int64           `json:"id"`
		Name          string          `json:"name"`
		Email         string          `json:"email"`
		MonthlySalary decimal.Decimal `json:"monthlySalary"`
		CreatedAt     time.Time       `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidType       = errors.New("invalid recurring type")
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	ErrEmptyLabel        = errors.New("empty label")
	ErrNoteTooLong       = errors.New("note too long (max 200 characters)")
	ErrEndBeforeStart    = errors.New("end date must not be before start date")
	ErrInvalidStepUp     = errors.New("invalid step-up")
	ErrStepUpBeforeStart = errors.New("step-up start must not be before start date")
	ErrInvalidDateRange  = errors.New("start date must not be after end date")
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrWeakPassword      = errors.New("password must be at least 8 characters")
	ErrTermsNotAccepted  = errors.New("terms must be accepted")
	ErrNegativeSalary    = errors.New("monthly salary cannot be negative")
	ErrTooManyExpenses   = errors.New("too many expenses in one request")
	ErrNoExpenses        = errors.New("no expenses provided")
	ErrInvalidMonth      = errors.New("month must be between 1 and 12")
)

var categories = map[Category]struct{}{
	CategoryMutualFund: {},
	CategoryStock:      {},
	CategoryShopping:   {},
	CategoryGrocery:    {},
	CategoryRentBills:  {},
	CategoryEMI:        {},
	CategoryCreditCard: {},
	CategoryOther:      {},
}

// Categories returns every known category in display order.
func Categories() []Category {
	return []Category{
		CategoryMutualFund, CategoryStock, CategoryShopping, CategoryGrocery,
		CategoryRentBills, CategoryEMI, CategoryCreditCard, CategoryOther,
	}
}

func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

func (t ItemType) Valid() bool {
	switch t {
	case EMI, SIP, Fixed:
		return true
	}
	return false
}

func (r Recurrence) Valid() bool {
	switch r {
	case Monthly, Quarterly, HalfYearly, Yearly, OneTime:
		return true
	}
	return false
}

// ExpenseCategory is the category used when the item is posted as an expense.
func (t ItemType) ExpenseCategory() Category {
	switch t {
	case EMI:
		return CategoryEMI
	case SIP:
		return CategoryMutualFund
	default:
		return CategoryRentBills
	}
}

// ParseDate parses a "YYYY-MM-DD" calendar date.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil || !d.IsValid() {
		return civil.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

func (e Expense) Validate() error {
	if !e.Date.IsValid() {
		return ErrInvalidDate
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, e.Category)
	}
	if len(e.Note) > 200 {
		return ErrNoteTooLong
	}
	return nil
}

// Schedules must fall within these years.
const (
	MinScheduleYear = 1900
	MaxScheduleYear = 2200
)

func parseScheduleDate(s string) (civil.Date, error) {
	d, err := ParseDate(s)
	if err != nil {
		return civil.Date{}, err
	}
	if d.Year < MinScheduleYear || d.Year > MaxScheduleYear {
		return civil.Date{}, fmt.Errorf("%w: %q outside %d-%d", ErrInvalidDate, s, MinScheduleYear, MaxScheduleYear)
	}
	return d, nil
}

// Validate enforces what the API accepts. The recurrence engine itself
// tolerates anything and never relies on this having been called.
func (ri RecurringItem) Validate() error {
	if !ri.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, ri.Type)
	}
	if strings.TrimSpace(ri.Label) == "" {
		return ErrEmptyLabel
	}
	if len(ri.Label) > 200 {
		return errors.New("label too long (max 200 characters)")
	}
	if ri.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if !ri.Recurrence.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRecurrence, ri.Recurrence)
	}

	start, err := parseScheduleDate(ri.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if ri.EndDate != "" {
		end, err := parseScheduleDate(ri.EndDate)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		if end.Before(start) {
			return ErrEndBeforeStart
		}
	}

	if ri.StepUp != nil && ri.StepUp.Enabled {
		if err := ri.StepUp.validate(start); err != nil {
			return err
		}
	}
	return nil
}

func (s StepUp) validate(start civil.Date) error {
	switch s.Mode {
	case StepUpAmount, StepUpPercent:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidStepUp, s.Mode)
	}
	switch s.Every {
	case Every6Months, Every12Months:
	default:
		return fmt.Errorf("%w: unknown interval %q", ErrInvalidStepUp, s.Every)
	}
	if s.Value.IsNegative() {
		return fmt.Errorf("%w: negative value", ErrInvalidStepUp)
	}
	if s.From != "" {
		from, err := parseScheduleDate(s.From)
		if err != nil {
			return fmt.Errorf("invalid step-up start: %w", err)
		}
		if from.Before(start) {
			return ErrStepUpBeforeStart
		}
	}
	return nil
}

// Normalize trims free-text fields and drops a step-up that carries no data.
func (ri RecurringItem) Normalize() RecurringItem {
	ri.Label = strings.TrimSpace(ri.Label)
	ri.StartDate = strings.TrimSpace(ri.StartDate)
	ri.EndDate = strings.TrimSpace(ri.EndDate)
	if ri.StepUp != nil {
		su := *ri.StepUp
		su.From = strings.TrimSpace(su.From)
		if !su.Enabled && su.Value.IsZero() && su.From == "" {
			ri.StepUp = nil
		} else {
			ri.StepUp = &su
		}
	}
	return ri
}
