package http

import (
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

// recurringRequest accepts the item shape the client edits. Older clients
// send the base amount as baseAmount; it is used when amount is zero.
type recurringRequest struct {
	core.RecurringItem
	BaseAmount *decimal.Decimal `json:"baseAmount,omitempty"`
}

func (req recurringRequest) item() core.RecurringItem {
	item := req.RecurringItem
	if item.Amount.IsZero() && req.BaseAmount != nil {
		item.Amount = *req.BaseAmount
	}
	return item
}

type totalsResponse struct {
	Year   int                 `json:"year"`
	Type   core.ItemType       `json:"type,omitempty"`
	Months [12]decimal.Decimal `json:"months"`
	Total  decimal.Decimal     `json:"total"`
}

type nextDueResponse struct {
	From  civil.Date         `json:"from"`
	Items []services.DueItem `json:"items"`
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	items, err := s.recurring.List(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []core.RecurringItem{}
	}
	respond(w, http.StatusOK, items)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req recurringRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := s.recurring.Create(r.Context(), currentUser(r), req.item())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, r, errBadRequest("invalid id"))
		return
	}
	var req recurringRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := s.recurring.Update(r.Context(), currentUser(r), id, req.item())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, item)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	if err := s.recurring.Delete(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleRecurringSummary returns this month's totals and the rolling
// forecast. months defaults to the configured forecast length.
func (s *Server) handleRecurringSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params, err := ParseMonthParams(query, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	months, _, err := queryInt(query, "months")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if months < 0 {
		writeError(w, r, services.ErrInvalidForecast)
		return
	}
	summary, err := s.recurring.Summary(r.Context(), currentUser(r), params.Year, params.Month, months)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, summary)
}

func (s *Server) handleRecurringTotals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params, err := ParseMonthParams(query, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	typ := core.ItemType(strings.TrimSpace(query.Get("type")))
	months, err := s.recurring.Totals(r.Context(), currentUser(r), params.Year, typ)
	if err != nil {
		writeError(w, r, err)
		return
	}

	total := decimal.Zero
	for _, m := range months {
		total = total.Add(m)
	}
	respond(w, http.StatusOK, totalsResponse{Year: params.Year, Type: typ, Months: months, Total: total})
}

// handleNextDue lists each item's next occurrence on or after date, which
// defaults to today.
func (s *Server) handleNextDue(w http.ResponseWriter, r *http.Request) {
	from, err := ParseOptionalDate(r.URL.Query(), "date", civil.DateOf(s.now()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.recurring.NextDue(r.Context(), currentUser(r), from)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, nextDueResponse{From: from, Items: items})
}
