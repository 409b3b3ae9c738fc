package http

import (
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// expenseInput is one expense as the client sends it. Date is ignored when
// replacing a day.
type expenseInput struct {
	Amount   decimal.Decimal `json:"amount"`
	Category core.Category   `json:"category"`
	Date     civil.Date      `json:"date"`
	Note     string          `json:"note"`
}

func (in expenseInput) expense() core.Expense {
	return core.Expense{
		Date:     in.Date,
		Amount:   in.Amount,
		Category: in.Category,
		Note:     in.Note,
	}
}

type bulkRequest struct {
	Expenses []expenseInput `json:"expenses"`
}

type dayRequest struct {
	Items []expenseInput `json:"items"`
}

type bulkResponse struct {
	Expenses []core.Expense  `json:"expenses"`
	Days     []core.DayGroup `json:"days"`
}

type listResponse struct {
	Days  []core.DayGroup `json:"days"`
	Total decimal.Decimal `json:"total"`
}

func newListResponse(groups []core.DayGroup) listResponse {
	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(g.Total)
	}
	return listResponse{Days: groups, Total: total}
}

// handleListMonthExpenses returns the month's expenses grouped by day.
func (s *Server) handleListMonthExpenses(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	groups, err := s.expenses.ListMonth(r.Context(), currentUser(r), params.Year, params.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, newListResponse(groups))
}

func (s *Server) handleListRangeExpenses(w http.ResponseWriter, r *http.Request) {
	start, end, err := ParseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	groups, err := s.expenses.ListRange(r.Context(), currentUser(r), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, newListResponse(groups))
}

// handleAddExpenses stores a batch and answers with the saved rows and the
// refreshed month the client is looking at.
func (s *Server) handleAddExpenses(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	batch := make([]core.Expense, len(req.Expenses))
	for i, in := range req.Expenses {
		batch[i] = in.expense()
	}
	userID := currentUser(r)
	saved, err := s.expenses.AddBulk(r.Context(), userID, batch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	groups, err := s.expenses.ListMonth(r.Context(), userID, params.Year, params.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, bulkResponse{Expenses: saved, Days: groups})
}

func (s *Server) handleGetDay(w http.ResponseWriter, r *http.Request) {
	date, err := PathDate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	group, err := s.expenses.GetDay(r.Context(), currentUser(r), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, group)
}

// handleReplaceDay swaps the day's expenses for the submitted list. An
// empty list clears the day.
func (s *Server) handleReplaceDay(w http.ResponseWriter, r *http.Request) {
	date, err := PathDate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req dayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]core.Expense, len(req.Items))
	for i, in := range req.Items {
		items[i] = in.expense()
		items[i].Date = date
	}
	group, err := s.expenses.ReplaceDay(r.Context(), currentUser(r), date, items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, group)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.expenses.Delete(r.Context(), currentUser(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
