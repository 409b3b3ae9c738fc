package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/recurrence"
	"fintrack/internal/storage"
)

// MaxForecastMonths bounds the rolling forecast of a summary.
const MaxForecastMonths = 60

var ErrInvalidForecast = errors.New("invalid forecast length")

// RecurringSummary is the headline view of a user's commitments for one month.
type RecurringSummary struct {
	Year     int                      `json:"year"`
	Month    time.Month               `json:"month"`
	Total    decimal.Decimal          `json:"total"`
	EMI      decimal.Decimal          `json:"emi"`
	SIP      decimal.Decimal          `json:"sip"`
	Fixed    decimal.Decimal          `json:"fixed"`
	Forecast []recurrence.MonthAmount `json:"forecast"`
}

// DueItem is the next occurrence of one recurring item. Date is nil when
// the item has no upcoming occurrence.
type DueItem struct {
	ID     string          `json:"id"`
	Label  string          `json:"label"`
	Type   core.ItemType   `json:"type"`
	Date   *civil.Date     `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// RecurringService manages recurring items and the figures derived from them.
type RecurringService struct {
	storage        *storage.SQLiteRepository
	items          *cache.TTLCache[[]core.RecurringItem]
	summaries      *cache.TTLCache[RecurringSummary]
	forecastMonths int
	logger         *log.Logger
}

func NewRecurringService(storage *storage.SQLiteRepository, ttl time.Duration, forecastMonths int, logger *log.Logger) *RecurringService {
	if logger == nil {
		logger = log.Discard()
	}
	if forecastMonths < 1 {
		forecastMonths = 6
	}
	return &RecurringService{
		storage:        storage,
		items:          cache.NewTTLCache[[]core.RecurringItem](ttl, 2*ttl),
		summaries:      cache.NewTTLCache[RecurringSummary](ttl, 2*ttl),
		forecastMonths: forecastMonths,
		logger:         logger.WithComponent(log.ComponentRecurring),
	}
}

// List returns the user's items in creation order.
func (s *RecurringService) List(ctx context.Context, userID int64) ([]core.RecurringItem, error) {
	items, err := s.items.GetOrLoad(ctx, cache.Key("recurring", userID, "items"), func(ctx context.Context) ([]core.RecurringItem, error) {
		return s.storage.ListRecurring(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("list recurring: %w", err)
	}
	return slices.Clone(items), nil
}

// Create validates and stores a new item. An empty ID is replaced by a UUID.
func (s *RecurringService) Create(ctx context.Context, userID int64, item core.RecurringItem) (core.RecurringItem, error) {
	item = prepareItem(item)
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := item.Validate(); err != nil {
		return core.RecurringItem{}, err
	}
	if err := s.storage.CreateRecurring(ctx, userID, item); err != nil {
		return core.RecurringItem{}, err
	}
	s.invalidate(userID)

	s.logger.InfoContext(ctx, "Recurring item created",
		log.FieldUserID, userID,
		log.FieldRecurringID, item.ID,
		log.FieldItemType, item.Type,
		log.FieldAmount, item.Amount.String())
	return item, nil
}

// Update replaces the item with the given id.
func (s *RecurringService) Update(ctx context.Context, userID int64, id string, item core.RecurringItem) (core.RecurringItem, error) {
	item.ID = id
	item = prepareItem(item)
	if err := item.Validate(); err != nil {
		return core.RecurringItem{}, err
	}
	if err := s.storage.UpdateRecurring(ctx, userID, item); err != nil {
		return core.RecurringItem{}, err
	}
	s.invalidate(userID)

	s.logger.InfoContext(ctx, "Recurring item updated",
		log.FieldUserID, userID,
		log.FieldRecurringID, item.ID)
	return item, nil
}

func (s *RecurringService) Delete(ctx context.Context, userID int64, id string) error {
	if err := s.storage.DeleteRecurring(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(userID)

	s.logger.InfoContext(ctx, "Recurring item deleted",
		log.FieldUserID, userID,
		log.FieldRecurringID, id)
	return nil
}

// Summary returns the month's totals by type and a rolling forecast of
// months entries starting at that month. months <= 0 uses the default.
func (s *RecurringService) Summary(ctx context.Context, userID int64, year int, month time.Month, months int) (RecurringSummary, error) {
	if month < time.January || month > time.December {
		return RecurringSummary{}, core.ErrInvalidMonth
	}
	if months <= 0 {
		months = s.forecastMonths
	}
	if months > MaxForecastMonths {
		return RecurringSummary{}, fmt.Errorf("%w: at most %d months", ErrInvalidForecast, MaxForecastMonths)
	}

	key := cache.Key("recurring", userID, "summary", year, int(month), months)
	return s.summaries.GetOrLoad(ctx, key, func(ctx context.Context) (RecurringSummary, error) {
		items, err := s.List(ctx, userID)
		if err != nil {
			return RecurringSummary{}, err
		}
		return RecurringSummary{
			Year:     year,
			Month:    month,
			Total:    recurrence.AmountForMonth(items, year, month, ""),
			EMI:      recurrence.AmountForMonth(items, year, month, core.EMI),
			SIP:      recurrence.AmountForMonth(items, year, month, core.SIP),
			Fixed:    recurrence.AmountForMonth(items, year, month, core.Fixed),
			Forecast: recurrence.Forecast(items, year, month, months, ""),
		}, nil
	})
}

// Totals returns the twelve monthly totals of year, optionally for one type.
func (s *RecurringService) Totals(ctx context.Context, userID int64, year int, typ core.ItemType) ([12]decimal.Decimal, error) {
	if typ != "" && !typ.Valid() {
		return [12]decimal.Decimal{}, fmt.Errorf("%w: %q", core.ErrInvalidType, typ)
	}
	items, err := s.List(ctx, userID)
	if err != nil {
		return [12]decimal.Decimal{}, err
	}
	return recurrence.MonthlyTotalsByType(items, year, typ), nil
}

// NextDue lists the next occurrence of every item on or after the month of
// from, soonest first. Items with no occurrence come last.
func (s *RecurringService) NextDue(ctx context.Context, userID int64, from civil.Date) ([]DueItem, error) {
	if !from.IsValid() {
		return nil, core.ErrInvalidDate
	}
	items, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]DueItem, 0, len(items))
	for _, it := range items {
		d := DueItem{ID: it.ID, Label: it.Label, Type: it.Type, Amount: decimal.Zero}
		if due, ok := recurrence.NextDueDate(it, from); ok {
			d.Date = &due
			d.Amount = recurrence.AmountForItemInMonth(it, due.Year, due.Month)
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Date, out[j].Date
		if a == nil || b == nil {
			return a != nil
		}
		return a.Before(*b)
	})
	return out, nil
}

func (s *RecurringService) invalidate(userID int64) {
	prefix := cache.Key("recurring", userID) + ":"
	s.items.DeletePrefix(prefix)
	s.summaries.DeletePrefix(prefix)
}

func prepareItem(item core.RecurringItem) core.RecurringItem {
	item = item.Normalize()
	item.Label = sanitizeText(item.Label)
	return item
}
