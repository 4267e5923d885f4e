// Package http exposes the expense tracker as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"expensa/internal/assistant"
	"expensa/internal/auth"
	"expensa/internal/log"
	"expensa/internal/middleware/ratelimit"
	"expensa/internal/middleware/security"
	"expensa/internal/middleware/trace"
	"expensa/internal/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the handlers call into.
type Dependencies struct {
	Auth        *auth.Service
	Expenses    *services.ExpenseService
	Categories  *services.CategoryService
	Reports     *services.ReportService
	Assistant   *assistant.Bridge
	Transcripts *assistant.Transcripts
	Store       Pinger
}

// Options configure the transport.
type Options struct {
	Addr string
	// Location is the calendar used when a request carries no tz.
	Location           *time.Location
	RateLimitPerMinute int
	TrustedProxies     []string
	Logger             *log.Logger
}

type Server struct {
	http.Server

	auth        *auth.Service
	expenses    *services.ExpenseService
	categories  *services.CategoryService
	reports     *services.ReportService
	assistant   *assistant.Bridge
	transcripts *assistant.Transcripts
	store       Pinger

	location *time.Location
	now      func() time.Time
	started  time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, deps Dependencies) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	detector := security.NewDetector(logger)
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	transcripts := deps.Transcripts
	if transcripts == nil {
		transcripts = assistant.NewTranscripts(1000, 100, 24*time.Hour)
	}

	limiterCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limiterCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		auth:             deps.Auth,
		expenses:         deps.Expenses,
		categories:       deps.Categories,
		reports:          deps.Reports,
		assistant:        deps.Assistant,
		transcripts:      transcripts,
		store:            deps.Store,
		location:         loc,
		now:              time.Now,
		started:          time.Now(),
		rateLimiter:      ratelimit.NewLimiter(limiterCfg),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// The assistant call dominates the slowest responses.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/auth/signout", s.authed(s.handleSignOut))

	mux.HandleFunc("GET /api/expenses", s.authed(s.handleListExpenses))
	mux.HandleFunc("GET /api/expenses/grouped", s.authed(s.handleGroupedExpenses))
	mux.HandleFunc("POST /api/expenses", s.authed(s.handleCreateExpense))
	mux.HandleFunc("POST /api/expenses/preview", s.authed(s.handlePreviewExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.authed(s.handleDeleteExpense))

	mux.HandleFunc("GET /api/categories", s.authed(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.authed(s.handleCreateCategory))
	mux.HandleFunc("PATCH /api/categories/{id}", s.authed(s.handleUpdateCategoryLimit))
	mux.HandleFunc("DELETE /api/categories/{id}", s.authed(s.handleDeleteCategory))

	mux.HandleFunc("GET /api/reports/month", s.authed(s.handleMonthReport))

	mux.HandleFunc("GET /api/assistant/greeting", s.authed(s.handleAssistantGreeting))
	mux.HandleFunc("POST /api/assistant/ask", s.authed(s.handleAssistantAsk))
	mux.HandleFunc("GET /api/assistant/transcript", s.authed(s.handleAssistantTranscript))
}

// middleware wraps the mux, outermost first: tracing, security headers,
// suspicious request detection, then rate limiting of writes.
func (s *Server) middleware(next http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit)(next)
	writesLimited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	return s.traceMiddleware.Middleware(
		headers.Middleware(
			s.securityDetector.Middleware(writesLimited)))
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, please try again later").Write(w)
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
