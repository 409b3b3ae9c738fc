package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fintrack/internal/auth"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to its services.
type Options struct {
	Addr           string
	Auth           *services.AuthService
	Expenses       *services.ExpenseService
	Recurring      *services.RecurringService
	Advisor        *services.AdvisorService
	Tokens         *auth.Tokens
	DB             Pinger
	Logger         *log.Logger
	AllowedOrigins []string
	TrustedProxies []string
	RateLimit      ratelimit.Config

	// Now supplies the default month and reference date. Defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server
	auth      *services.AuthService
	expenses  *services.ExpenseService
	recurring *services.RecurringService
	advisor   *services.AdvisorService
	tokens    *auth.Tokens
	db        Pinger
	logger    *log.Logger
	now       func() time.Time
	started   time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, fmt.Errorf("trusted proxies: %w", err)
		}
	}

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		auth:             opts.Auth,
		expenses:         opts.Expenses,
		recurring:        opts.Recurring,
		advisor:          opts.Advisor,
		tokens:           opts.Tokens,
		db:               opts.DB,
		logger:           logger.WithComponent(log.ComponentHTTP),
		now:              now,
		started:          now(),
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
	}
	s.Handler = s.routes(opts.AllowedOrigins, logger)
	return s, nil
}

func (s *Server) routes(allowedOrigins []string, logger *log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(logger))
	r.Use(s.traceMiddleware.Middleware)
	r.Use(s.securityDetector.Middleware(logger))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(security.CORS(allowedOrigins))
	r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleUpdateProfile)
			r.Patch("/profile/password", s.handleChangePassword)

			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", s.handleListMonthExpenses)
				r.Post("/", s.handleAddExpenses)
				r.Get("/range", s.handleListRangeExpenses)
				r.Get("/summary", s.handleExpenseSummary)
				r.Get("/day/{date}", s.handleGetDay)
				r.Put("/day/{date}", s.handleReplaceDay)
				r.Delete("/{id}", s.handleDeleteExpense)
			})

			r.Get("/advisor", s.handleAdvisor)

			r.Route("/recurring", func(r chi.Router) {
				r.Get("/", s.handleListRecurring)
				r.Post("/", s.handleCreateRecurring)
				r.Get("/summary", s.handleRecurringSummary)
				r.Get("/totals", s.handleRecurringTotals)
				r.Get("/next-due", s.handleNextDue)
				r.Put("/{id}", s.handleUpdateRecurring)
				r.Delete("/{id}", s.handleDeleteRecurring)
			})
		})
	})
	return r
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
