package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/jobs"
	"finledger/internal/ledger"
	"finledger/internal/log"
	"finledger/internal/middleware/ratelimit"
	"finledger/internal/middleware/trace"
)

// LedgerService is the part of ledger.Service the handlers call.
type LedgerService interface {
	GetBalance(ctx context.Context, userID string) (ledger.BalanceView, error)
	PostTransaction(ctx context.Context, userID string, in ledger.TransactionInput) (ledger.TransactionView, error)
	History(ctx context.Context, userID string, q ledger.HistoryQuery) (ledger.TransactionHistory, error)
	SetReservePercentage(ctx context.Context, userID string, pct int) error
	AddNeed(ctx context.Context, userID, category string, amount decimal.Decimal) (core.NonExcludableNeed, error)
	AddGoal(ctx context.Context, userID, name string, target decimal.Decimal) (core.SavingsGoal, error)
	Settings(ctx context.Context, userID string) (ledger.SettingsView, error)
	ExpenseReport(ctx context.Context, userID, period string) ([]core.CategoryAmount, error)
	BalanceSeries(ctx context.Context, userID, period string) ([]ledger.BalancePoint, error)
	RegisterUser(ctx context.Context, userID string, p ledger.Profile) (core.User, error)
}

// JobTrigger runs a recurring job on demand.
type JobTrigger interface {
	Run(ctx context.Context) (jobs.Report, error)
}

// Pinger backs the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

var _ LedgerService = (*ledger.Service)(nil)

// AdminTokenHeader carries the operator token for the job trigger routes.
const AdminTokenHeader = "X-Admin-Token"

// Options wires the server. SalaryJob, NeedsJob and Readiness are optional.
// The job trigger routes answer 403 while AdminToken is empty.
type Options struct {
	Ledger             LedgerService
	SalaryJob          JobTrigger
	NeedsJob           JobTrigger
	Readiness          Pinger
	AdminToken         string
	RateLimitPerMinute int
	Logger             *slog.Logger
}

type Server struct {
	http.Server
	ledger     LedgerService
	salaryJob  JobTrigger
	needsJob   JobTrigger
	readiness  Pinger
	adminToken string
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware
	logger     *slog.Logger
}

// NewServer builds the ledger API on addr. Call Shutdown to stop it and the
// rate limiter.
func NewServer(addr string, opts Options) *Server {
	logger := log.WithComponent(opts.Logger, log.ComponentHTTP)
	s := &Server{
		ledger:     opts.Ledger,
		salaryJob:  opts.SalaryJob,
		needsJob:   opts.NeedsJob,
		readiness:  opts.Readiness,
		adminToken: opts.AdminToken,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:     trace.NewMiddleware(opts.Logger),
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/balances", requireUser(s.handleGetBalance))
	mux.HandleFunc("POST /api/transactions", requireUser(s.handlePostTransaction))
	mux.HandleFunc("GET /api/transactions/history", requireUser(s.handleHistory))
	mux.HandleFunc("PUT /api/settings/reserve", requireUser(s.handleSetReserve))
	mux.HandleFunc("POST /api/settings/needs", requireUser(s.handleAddNeed))
	mux.HandleFunc("POST /api/settings/goals", requireUser(s.handleAddGoal))
	mux.HandleFunc("GET /api/settings", requireUser(s.handleGetSettings))
	mux.HandleFunc("GET /api/reports/expenses", requireUser(s.handleExpenseReport))
	mux.HandleFunc("GET /api/reports/balance", requireUser(s.handleBalanceReport))
	mux.HandleFunc("PUT /api/users/me", requireUser(s.handlePutProfile))

	mux.HandleFunc("POST /api/jobs/salary/run", s.requireAdmin(s.handleRunJob(s.salaryJob)))
	mux.HandleFunc("POST /api/jobs/needs/run", s.requireAdmin(s.handleRunJob(s.needsJob)))

	s.Addr = addr
	s.Handler = s.tracer.Middleware(s.rateLimitMutations(mux))
	s.ReadHeaderTimeout = 5 * time.Second
	s.ReadTimeout = 15 * time.Second
	// Job triggers run synchronously.
	s.WriteTimeout = 5 * time.Minute
	s.IdleTimeout = 60 * time.Second
	return s
}

// rateLimitMutations applies the per-client limit to non-read requests only.
func (s *Server) rateLimitMutations(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(clientKey, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", "client", clientKey(r))
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, try again later").Write(w)
	})(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

// Shutdown stops accepting requests and releases the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}
