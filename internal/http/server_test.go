package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/advisor"
	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2025, time.March, 15, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, limit ratelimit.Config) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	logger := log.Discard()
	tokens := auth.NewTokens(testSecret, time.Hour)
	expenses := services.NewExpenseService(repo, nil, time.Minute, logger)
	srv, err := NewServer(Options{
		Addr:           ":0",
		Auth:           services.NewAuthService(repo, tokens, logger),
		Expenses:       expenses,
		Recurring:      services.NewRecurringService(repo, time.Minute, 6, logger),
		Advisor:        services.NewAdvisorService(repo, expenses, logger),
		Tokens:         tokens,
		DB:             repo,
		Logger:         logger,
		AllowedOrigins: []string{"http://localhost:5173"},
		RateLimit:      limit,
		Now:            func() time.Time { return testNow },
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return srv
}

func generousLimit() ratelimit.Config {
	return ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000}
}

func do(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error
}

// signupAndLogin registers a user and returns a bearer token.
func signupAndLogin(t *testing.T, srv *Server, email string) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "Asha", "email": email, "password": "correct-horse", "acceptTerms": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/auth/login", "", map[string]any{"email": email, "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[loginResponse](t, rec)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthReadyAndMetrics(t *testing.T) {
	srv := newTestServer(t, generousLimit())

	rec := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(t, srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ready", body["status"])

	rec = do(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total ")

	rec = do(t, srv, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", errorOf(t, rec))

	rec = do(t, srv, http.MethodDelete, "/healthz", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReadyWithoutDatabase(t *testing.T) {
	srv, err := NewServer(Options{Now: func() time.Time { return testNow }})
	require.NoError(t, err)
	t.Cleanup(func() { srv.rateLimiter.Stop() })

	rec := do(t, srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewServerRejectsBadProxy(t *testing.T) {
	_, err := NewServer(Options{TrustedProxies: []string{"10.0.0.0/99"}})
	assert.Error(t, err)
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	token := signupAndLogin(t, srv, "asha@example.com")

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"duplicate email", map[string]any{"name": "A", "email": "ASHA@example.com", "password": "long-enough", "acceptTerms": true}, http.StatusConflict},
		{"bad email", map[string]any{"name": "A", "email": "nope", "password": "long-enough", "acceptTerms": true}, http.StatusBadRequest},
		{"short password", map[string]any{"name": "A", "email": "b@example.com", "password": "short", "acceptTerms": true}, http.StatusBadRequest},
		{"terms", map[string]any{"name": "A", "email": "c@example.com", "password": "long-enough"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/auth/signup", "", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, srv, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "asha@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", errorOf(t, rec))

	rec = do(t, srv, http.MethodPost, "/api/auth/login", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	rec = do(t, srv, http.MethodGet, "/api/profile", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "asha@example.com", decode[core.User](t, rec).Email)
}

func TestProfileAndPassword(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	token := signupAndLogin(t, srv, "profile@example.com")

	rec := do(t, srv, http.MethodPut, "/api/profile", token, map[string]any{"name": "Asha R", "monthlySalary": 85000.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decode[core.User](t, rec)
	assert.Equal(t, "Asha R", user.Name)
	assert.True(t, user.MonthlySalary.Equal(decimal.RequireFromString("85000.5")))

	// Omitting the salary keeps it.
	rec = do(t, srv, http.MethodPut, "/api/profile", token, map[string]any{"name": "Asha"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[core.User](t, rec).MonthlySalary.Equal(decimal.RequireFromString("85000.5")))

	rec = do(t, srv, http.MethodPut, "/api/profile", token, map[string]any{"name": "Asha", "monthlySalary": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPatch, "/api/profile/password", token, map[string]any{"currentPassword": "nope-nope", "newPassword": "brand-new-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "current password is incorrect", errorOf(t, rec))

	rec = do(t, srv, http.MethodPatch, "/api/profile/password", token, map[string]any{"currentPassword": "correct-horse", "newPassword": "brand-new-pass"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "profile@example.com", "password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExpensesEndpoints(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	token := signupAndLogin(t, srv, "spend@example.com")

	rec := do(t, srv, http.MethodPost, "/api/expenses?month=3&year=2025", token, map[string]any{
		"expenses": []map[string]any{
			{"amount": 450, "category": "grocery", "date": "2025-03-03", "note": "<b>veg</b>"},
			{"amount": "1200.50", "category": "rentBills", "date": "2025-03-01"},
			{"amount": 99, "category": "shopping", "date": "2025-04-02"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bulk := decode[bulkResponse](t, rec)
	require.Len(t, bulk.Expenses, 3)
	assert.Equal(t, "veg", bulk.Expenses[0].Note)
	require.Len(t, bulk.Days, 2, "only March is returned")
	assert.Equal(t, "2025-03-01", bulk.Days[0].Date.String())

	// The default month is the server's current month.
	rec = do(t, srv, http.MethodGet, "/api/expenses", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse](t, rec)
	assert.Len(t, list.Days, 2)
	assert.True(t, list.Total.Equal(decimal.RequireFromString("1650.5")), "got %s", list.Total)

	rec = do(t, srv, http.MethodGet, "/api/expenses/range?start=2025-03-01&end=2025-04-30", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listResponse](t, rec).Days, 3)

	rec = do(t, srv, http.MethodGet, "/api/expenses/summary?start=2025-03-01&end=2025-03-31", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[core.RangeSummary](t, rec)
	assert.True(t, summary.Total.Equal(decimal.RequireFromString("1650.5")))
	assert.Len(t, summary.ByCategory, 2)

	rec = do(t, srv, http.MethodPut, "/api/expenses/day/2025-03-03", token, map[string]any{
		"items": []map[string]any{{"amount": 20, "category": "grocery"}, {"amount": 5, "category": "other", "note": "tip"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	group := decode[core.DayGroup](t, rec)
	require.Len(t, group.Items, 2)
	assert.True(t, group.Total.Equal(decimal.NewFromInt(25)))

	rec = do(t, srv, http.MethodGet, "/api/expenses/day/2025-03-03", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	group = decode[core.DayGroup](t, rec)
	require.Len(t, group.Items, 2)

	path := "/api/expenses/" + strconv.FormatInt(group.Items[0].ID, 10)
	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, path, token, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, path, token, nil).Code)

	other := signupAndLogin(t, srv, "other@example.com")
	rec = do(t, srv, http.MethodGet, "/api/expenses/day/2025-03-03", other, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[core.DayGroup](t, rec).Items, "users never see each other's expenses")
}

func TestExpensesValidation(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	token := signupAndLogin(t, srv, "bad@example.com")

	tooMany := make([]map[string]any, services.MaxBulkExpenses+1)
	for i := range tooMany {
		tooMany[i] = map[string]any{"amount": 1, "category": "other", "date": "2025-03-01"}
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"month out of range", http.MethodGet, "/api/expenses?month=13&year=2025", nil, http.StatusBadRequest},
		{"month not a number", http.MethodGet, "/api/expenses?month=march", nil, http.StatusBadRequest},
		{"range missing end", http.MethodGet, "/api/expenses/range?start=2025-03-01", nil, http.StatusBadRequest},
		{"range reversed", http.MethodGet, "/api/expenses/range?start=2025-03-10&end=2025-03-01", nil, http.StatusBadRequest},
		{"bad day", http.MethodGet, "/api/expenses/day/2025-02-30", nil, http.StatusBadRequest},
		{"bad id", http.MethodDelete, "/api/expenses/abc", nil, http.StatusBadRequest},
		{"empty batch", http.MethodPost, "/api/expenses", map[string]any{"expenses": []any{}}, http.StatusBadRequest},
		{"unknown category", http.MethodPost, "/api/expenses", map[string]any{"expenses": []map[string]any{{"amount": 1, "category": "travel", "date": "2025-03-01"}}}, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/api/expenses", map[string]any{"expenses": []map[string]any{{"amount": -3, "category": "other", "date": "2025-03-01"}}}, http.StatusBadRequest},
		{"bad date in body", http.MethodPost, "/api/expenses", map[string]any{"expenses": []map[string]any{{"amount": 1, "category": "other", "date": "03/01/2025"}}}, http.StatusBadRequest},
		{"too many", http.MethodPost, "/api/expenses", map[string]any{"expenses": tooMany}, http.StatusRequestEntityTooLarge},
		{"trailing data", http.MethodPost, "/api/expenses", `{"expenses":[]} {}`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/expenses", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, errorOf(t, rec))
		})
	}
}

func TestRecurringEndpoints(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	token := signupAndLogin(t, srv, "plan@example.com")

	rec := do(t, srv, http.MethodPost, "/api/recurring", token, map[string]any{
		"type": "EMI", "label": "Home loan", "amount": 20000, "recurrence": "monthly",
		"startDate": "2025-01-31", "endDate": "2025-12-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	loan := decode[core.RecurringItem](t, rec)
	assert.NotEmpty(t, loan.ID)

	// Legacy clients send baseAmount.
	rec = do(t, srv, http.MethodPost, "/api/recurring", token, map[string]any{
		"id": "sip-1", "type": "SIP", "label": "Index fund", "baseAmount": 5000, "recurrence": "monthly",
		"startDate": "2025-01-10",
		"stepUp":    map[string]any{"enabled": true, "mode": "percent", "every": "12m", "value": 10},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decode[core.RecurringItem](t, rec).Amount.Equal(decimal.NewFromInt(5000)))

	rec = do(t, srv, http.MethodPost, "/api/recurring", token, map[string]any{
		"id": "sip-1", "type": "SIP", "label": "Again", "amount": 1, "recurrence": "monthly", "startDate": "2025-01-10",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/recurring", token, map[string]any{
		"type": "Loan", "label": "x", "amount": 1, "recurrence": "monthly", "startDate": "2025-01-10",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/recurring", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.RecurringItem](t, rec), 2)

	rec = do(t, srv, http.MethodGet, "/api/recurring/summary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[services.RecurringSummary](t, rec)
	assert.Equal(t, time.March, summary.Month)
	assert.True(t, summary.Total.Equal(decimal.NewFromInt(25000)))
	assert.True(t, summary.EMI.Equal(decimal.NewFromInt(20000)))
	assert.Len(t, summary.Forecast, 6)

	rec = do(t, srv, http.MethodGet, "/api/recurring/summary?year=2025&month=11&months=3", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary = decode[services.RecurringSummary](t, rec)
	require.Len(t, summary.Forecast, 3)
	assert.True(t, summary.Forecast[2].Amount.Equal(decimal.NewFromInt(5500)), "January 2026 has only the stepped-up SIP")

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/recurring/summary?months=61", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/recurring/summary?months=-1", token, nil).Code)

	rec = do(t, srv, http.MethodGet, "/api/recurring/totals?year=2025&type=EMI", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	totals := decode[totalsResponse](t, rec)
	assert.True(t, totals.Months[0].Equal(decimal.NewFromInt(20000)))
	assert.True(t, totals.Total.Equal(decimal.NewFromInt(240000)))
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/recurring/totals?type=Loan", token, nil).Code)

	rec = do(t, srv, http.MethodGet, "/api/recurring/next-due?date=2025-02-15", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	due := decode[nextDueResponse](t, rec)
	require.Len(t, due.Items, 2)
	assert.Equal(t, "sip-1", due.Items[0].ID)
	assert.Equal(t, "2025-02-10", due.Items[0].Date.String())
	require.NotNil(t, due.Items[1].Date)
	assert.Equal(t, "2025-02-28", due.Items[1].Date.String(), "day 31 clamps to the end of February")

	rec = do(t, srv, http.MethodGet, "/api/recurring/next-due", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-03-15", decode[nextDueResponse](t, rec).From.String())
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/recurring/next-due?date=tomorrow", token, nil).Code)

	loan.Amount = decimal.NewFromInt(21000)
	rec = do(t, srv, http.MethodPut, "/api/recurring/"+loan.ID, token, loan)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[core.RecurringItem](t, rec).Amount.Equal(decimal.NewFromInt(21000)))

	other := signupAndLogin(t, srv, "someone@example.com")
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPut, "/api/recurring/"+loan.ID, other, loan).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/recurring/"+loan.ID, other, nil).Code)

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/recurring/"+loan.ID, token, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/recurring/"+loan.ID, token, nil).Code)
}

func TestAdvisorEndpoint(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	token := signupAndLogin(t, srv, "advice@example.com")

	rec := do(t, srv, http.MethodGet, "/api/advisor?start=2025-03-01&end=2025-03-31", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[advisor.Report](t, rec)
	assert.True(t, report.Income.IsZero())

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/api/profile", token, map[string]any{"name": "A", "monthlySalary": 100000}).Code)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/expenses", token, map[string]any{
		"expenses": []map[string]any{
			{"amount": 30000, "category": "rentBills", "date": "2025-03-01"},
			{"amount": 10000, "category": "stock", "date": "2025-03-05"},
		},
	}).Code)

	rec = do(t, srv, http.MethodGet, "/api/advisor?start=2025-03-01&end=2025-03-31", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report = decode[advisor.Report](t, rec)
	assert.True(t, report.Income.Equal(decimal.NewFromInt(100000)), "got %s", report.Income)
	assert.True(t, report.Spent.Equal(decimal.NewFromInt(40000)))
	assert.True(t, report.Investing.Equal(decimal.NewFromInt(10000)))

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/advisor?start=2025-03-31&end=2025-03-01", token, nil).Code)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, ratelimit.Config{RequestsPerSecond: 0.01, Burst: 2})

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "", nil).Code)

	rec := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.True(t, strings.HasPrefix(errorOf(t, rec), "rate limit exceeded"))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	req := httptest.NewRequest(http.MethodOptions, "/api/expenses", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
