package http

import (
	"net/http"
)

// handleExpenseSummary returns category totals for an inclusive range.
func (s *Server) handleExpenseSummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := ParseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.expenses.Summary(r.Context(), currentUser(r), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, summary)
}

// handleAdvisor analyses the range against the profile salary.
func (s *Server) handleAdvisor(w http.ResponseWriter, r *http.Request) {
	start, end, err := ParseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.advisor.Analyze(r.Context(), currentUser(r), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, report)
}
