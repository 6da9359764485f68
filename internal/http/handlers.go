package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/jobs"
	"finledger/internal/ledger"
	"finledger/internal/log"
)

type (
	balanceResponse struct {
		TotalBalance      string `json:"total_balance"`
		ReserveBalance    string `json:"reserve_balance"`
		ReservePercentage int    `json:"reserve_percentage"`
	}

	transactionResponse struct {
		ID          string    `json:"id"`
		Amount      string    `json:"amount"`
		Type        string    `json:"type"`
		Category    string    `json:"category"`
		Description string    `json:"description"`
		Date        time.Time `json:"date"`
	}

	historyResponse struct {
		Transactions  []transactionResponse `json:"transactions"`
		TotalCount    int                   `json:"total_count"`
		TotalIncome   string                `json:"total_income"`
		TotalExpenses string                `json:"total_expenses"`
	}

	needResponse struct {
		ID       string `json:"id"`
		Category string `json:"category"`
		Amount   string `json:"amount"`
	}

	goalResponse struct {
		ID            string `json:"id"`
		GoalName      string `json:"goal_name"`
		TargetAmount  string `json:"target_amount"`
		CurrentAmount string `json:"current_amount"`
		Progress      string `json:"progress"`
	}

	settingsResponse struct {
		ReservePercentage int            `json:"reserve_percentage"`
		Needs             []needResponse `json:"needs"`
		Goals             []goalResponse `json:"savings_goals"`
	}

	balancePointResponse struct {
		Date    string `json:"date"`
		Balance string `json:"balance"`
	}

	balanceReportResponse struct {
		Period string                 `json:"period"`
		Points []balancePointResponse `json:"points"`
	}

	categoryResponse struct {
		Category   string `json:"category"`
		Amount     string `json:"amount"`
		Percentage string `json:"percentage"`
	}

	reportResponse struct {
		Period     string             `json:"period"`
		Total      string             `json:"total"`
		Categories []categoryResponse `json:"categories"`
	}

	userResponse struct {
		ID        string    `json:"id"`
		Salary    string    `json:"salary"`
		SalaryDay int       `json:"salary_day"`
		Currency  string    `json:"currency"`
		CreatedAt time.Time `json:"created_at"`
	}

	jobFailureResponse struct {
		UserID string `json:"user_id"`
		Error  string `json:"error"`
	}

	jobReportResponse struct {
		Job            string               `json:"job"`
		RunID          string               `json:"run_id"`
		Period         string               `json:"period"`
		StartedAt      time.Time            `json:"started_at"`
		FinishedAt     time.Time            `json:"finished_at"`
		DurationMs     int64                `json:"duration_ms"`
		Eligible       int                  `json:"eligible"`
		Processed      int                  `json:"processed"`
		Duplicates     int                  `json:"duplicates"`
		NothingDue     int                  `json:"nothing_due"`
		Skipped        int                  `json:"skipped"`
		Failed         int                  `json:"failed"`
		NotifyFailures int                  `json:"notify_failures"`
		TotalAmount    string               `json:"total_amount"`
		Failures       []jobFailureResponse `json:"failures"`
	}
)

func newTransactionResponse(v ledger.TransactionView) transactionResponse {
	return transactionResponse{
		ID:          v.ID,
		Amount:      core.FormatAmount(v.Amount),
		Type:        v.Type,
		Category:    v.Category,
		Description: v.Description,
		Date:        v.Date,
	}
}

func newNeedResponse(n core.NonExcludableNeed) needResponse {
	return needResponse{ID: n.ID, Category: n.Category, Amount: core.FormatAmount(n.Amount)}
}

func newGoalResponse(g core.SavingsGoal) goalResponse {
	return goalResponse{
		ID:            g.ID,
		GoalName:      g.GoalName,
		TargetAmount:  core.FormatAmount(g.TargetAmount),
		CurrentAmount: core.FormatAmount(g.CurrentAmount),
		Progress:      g.Progress.StringFixed(1),
	}
}

func newJobReportResponse(r jobs.Report) jobReportResponse {
	out := jobReportResponse{
		Job:            r.Job,
		RunID:          r.RunID,
		Period:         r.Period,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		DurationMs:     r.Duration().Milliseconds(),
		Eligible:       r.Eligible,
		Processed:      r.Processed,
		Duplicates:     r.Duplicates,
		NothingDue:     r.NothingDue,
		Skipped:        r.Skipped,
		Failed:         r.Failed,
		NotifyFailures: r.NotifyFailures,
		TotalAmount:    core.FormatAmount(r.TotalAmount),
		Failures:       make([]jobFailureResponse, 0, len(r.Failures)),
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, jobFailureResponse{UserID: f.UserID, Error: f.Error})
	}
	return out
}

// requireUser wraps handlers that act on behalf of the X-User-ID caller and
// adds the user to the request logger.
func requireUser(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := userID(r)
		if id == "" {
			UnauthorizedError().Write(w)
			return
		}
		logger := log.FromContext(r.Context()).With(log.FieldUserID, id)
		next(w, r.WithContext(log.IntoContext(r.Context(), logger)), id)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.readiness.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			ErrorResponse(http.StatusServiceUnavailable, "not_ready", "store unavailable").Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, user string) {
	v, err := s.ledger.GetBalance(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(balanceResponse{
		TotalBalance:      core.FormatAmount(v.TotalBalance),
		ReserveBalance:    core.FormatAmount(v.ReserveBalance),
		ReservePercentage: v.ReservePercentage,
	}).Write(w)
}

func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request, user string) {
	var req postTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	amount, err := core.ParseAmount(req.Amount.String())
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := ledger.TransactionInput{
		Amount:      amount,
		Type:        req.Type,
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
	}
	if req.Date != "" {
		// Validated by the datetime tag.
		in.Date, _ = time.Parse(dateLayout, req.Date)
	}

	v, err := s.ledger.PostTransaction(r.Context(), user, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(newTransactionResponse(v)).Write(w)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, user string) {
	params, err := parseHistoryParams(r.URL.Query())
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	q, err := params.toQuery()
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	h, err := s.ledger.History(r.Context(), user, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := historyResponse{
		Transactions:  make([]transactionResponse, 0, len(h.Transactions)),
		TotalCount:    h.TotalCount,
		TotalIncome:   core.FormatAmount(h.TotalIncome),
		TotalExpenses: core.FormatAmount(h.TotalExpenses),
	}
	for _, tx := range h.Transactions {
		resp.Transactions = append(resp.Transactions, newTransactionResponse(tx))
	}
	NewResponse().JSON(resp).Write(w)
}

func (s *Server) handleSetReserve(w http.ResponseWriter, r *http.Request, user string) {
	var req reserveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := s.ledger.SetReservePercentage(r.Context(), user, *req.ReservePercentage); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(map[string]int{"reserve_percentage": *req.ReservePercentage}).Write(w)
}

func (s *Server) handleAddNeed(w http.ResponseWriter, r *http.Request, user string) {
	var req needRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	amount, err := core.ParseAmount(req.Amount.String())
	if err != nil {
		writeError(w, r, err)
		return
	}
	need, err := s.ledger.AddNeed(r.Context(), user, sanitizeInput(req.Category), amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(newNeedResponse(need)).Write(w)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request, user string) {
	v, err := s.ledger.Settings(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := settingsResponse{
		ReservePercentage: v.ReservePercentage,
		Needs:             make([]needResponse, 0, len(v.Needs)),
		Goals:             make([]goalResponse, 0, len(v.Goals)),
	}
	for _, n := range v.Needs {
		resp.Needs = append(resp.Needs, newNeedResponse(n))
	}
	for _, g := range v.Goals {
		resp.Goals = append(resp.Goals, newGoalResponse(g))
	}
	NewResponse().JSON(resp).Write(w)
}

func (s *Server) handleAddGoal(w http.ResponseWriter, r *http.Request, user string) {
	var req goalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	target, err := core.ParseAmount(req.TargetAmount.String())
	if err != nil {
		writeError(w, r, err)
		return
	}
	goal, err := s.ledger.AddGoal(r.Context(), user, sanitizeInput(req.GoalName), target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(newGoalResponse(goal)).Write(w)
}

// reportPeriod reads the period query parameter, defaulting to month.
func reportPeriod(r *http.Request) (string, error) {
	params := reportParams{Period: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("period")))}
	if err := validateStruct(&params); err != nil {
		return "", err
	}
	if params.Period == "" {
		params.Period = "month"
	}
	return params.Period, nil
}

func (s *Server) handleBalanceReport(w http.ResponseWriter, r *http.Request, user string) {
	period, err := reportPeriod(r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	points, err := s.ledger.BalanceSeries(r.Context(), user, period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := balanceReportResponse{Period: period, Points: make([]balancePointResponse, 0, len(points))}
	for _, p := range points {
		resp.Points = append(resp.Points, balancePointResponse{
			Date:    p.Date.Format(dateLayout),
			Balance: core.FormatAmount(p.Balance),
		})
	}
	NewResponse().JSON(resp).Write(w)
}

func (s *Server) handleExpenseReport(w http.ResponseWriter, r *http.Request, user string) {
	period, err := reportPeriod(r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	cats, err := s.ledger.ExpenseReport(r.Context(), user, period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total := decimal.Zero
	resp := reportResponse{Period: period, Categories: make([]categoryResponse, 0, len(cats))}
	for _, c := range cats {
		total = total.Add(c.Amount)
		resp.Categories = append(resp.Categories, categoryResponse{
			Category:   c.Category,
			Amount:     core.FormatAmount(c.Amount),
			Percentage: c.Percentage.StringFixed(1),
		})
	}
	resp.Total = core.FormatAmount(total)
	NewResponse().JSON(resp).Write(w)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request, user string) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	salary := decimal.Zero
	if req.Salary != "" {
		var err error
		if salary, err = core.ParseAmount(req.Salary.String()); err != nil {
			writeError(w, r, err)
			return
		}
	}

	u, err := s.ledger.RegisterUser(r.Context(), user, ledger.Profile{
		Salary:    salary,
		SalaryDay: req.SalaryDay,
		Currency:  req.Currency,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(userResponse{
		ID:        u.ID,
		Salary:    core.FormatAmount(u.Salary),
		SalaryDay: u.SalaryDay,
		Currency:  u.CurrencyOrDefault(),
		CreatedAt: u.CreatedAt,
	}).Write(w)
}

// requireAdmin guards operator routes with the configured admin token. With
// no token configured the routes are disabled.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			ErrorResponse(http.StatusForbidden, "admin_disabled", "admin routes are disabled").Write(w)
			return
		}
		token := strings.TrimSpace(r.Header.Get(AdminTokenHeader))
		if token == "" {
			ErrorResponse(http.StatusUnauthorized, "unauthorized", "missing "+AdminTokenHeader+" header").Write(w)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rejected admin request", "path", r.URL.Path)
			ErrorResponse(http.StatusForbidden, "forbidden", "invalid admin token").Write(w)
			return
		}
		next(w, r)
	}
}

// handleRunJob triggers job synchronously and returns its Report. A run that
// failed part-way still reports what it committed.
func (s *Server) handleRunJob(job JobTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if job == nil {
			ErrorResponse(http.StatusServiceUnavailable, "job_unavailable", "job not configured").Write(w)
			return
		}
		report, err := job.Run(r.Context())
		if err != nil && report.RunID == "" {
			writeError(w, r, err)
			return
		}
		status := http.StatusOK
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Job run finished with error", log.FieldJob, report.Job, "error", err)
			status = http.StatusInternalServerError
		}
		NewResponse().Status(status).JSON(newJobReportResponse(report)).Write(w)
	}
}
