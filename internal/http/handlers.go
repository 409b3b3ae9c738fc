package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks the database before reporting ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	if s.db == nil {
		checks["database"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.db.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["database"] = "failed"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
	}

	respond(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_request_duration_avg_microseconds Mean request duration\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_microseconds gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP rate_limit_rejected_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_rejected_total counter\n")
	fmt.Fprintf(w, "rate_limit_rejected_total %d\n\n", rateLimitMetrics.Rejected)

	fmt.Fprintf(w, "# HELP rate_limit_active_clients Clients with a live token bucket\n")
	fmt.Fprintf(w, "# TYPE rate_limit_active_clients gauge\n")
	fmt.Fprintf(w, "rate_limit_active_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP security_suspicious_requests_total Requests matching probe patterns\n")
	fmt.Fprintf(w, "# TYPE security_suspicious_requests_total counter\n")
	fmt.Fprintf(w, "security_suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP security_invalid_forwarded_ip_total Malformed forwarded client addresses\n")
	fmt.Fprintf(w, "# TYPE security_invalid_forwarded_ip_total counter\n")
	fmt.Fprintf(w, "security_invalid_forwarded_ip_total %d\n\n", securityMetrics.InvalidIPAttempts)

	fmt.Fprintf(w, "# HELP uptime_seconds Seconds since the server started\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %d\n", int64(time.Since(s.started).Seconds()))
}

// requireAuth accepts "Authorization: Bearer <jwt>" and stores the user in
// the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			UnauthorizedError("authorization header required").Write(w)
			return
		}

		userID, err := s.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).DebugContext(r.Context(), "Token rejected", log.FieldError, err)
			writeError(w, r, auth.ErrInvalidToken)
			return
		}

		ctx := auth.WithUserID(r.Context(), userID)
		ctx = log.NewContext(ctx, log.FromContext(ctx).WithUser(userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser returns the user set by requireAuth.
func currentUser(r *http.Request) int64 {
	id, _ := auth.UserID(r.Context())
	return id
}
