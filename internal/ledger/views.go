package ledger

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

type (
	BalanceView struct {
		TotalBalance      decimal.Decimal
		ReserveBalance    decimal.Decimal
		ReservePercentage int
	}

	TransactionView struct {
		ID          string
		Amount      decimal.Decimal
		Type        string
		Category    string
		Description string
		Date        time.Time
	}

	// HistoryQuery filters the transaction history. Period (week, month, 3m,
	// 6m, year) only applies when From and To are both unset.
	HistoryQuery struct {
		From      time.Time
		To        time.Time
		Period    string
		Category  string
		MinAmount *decimal.Decimal
		MaxAmount *decimal.Decimal
		Search    string
	}

	TransactionHistory struct {
		Transactions  []TransactionView
		TotalCount    int
		TotalIncome   decimal.Decimal
		TotalExpenses decimal.Decimal
	}

	SettingsView struct {
		ReservePercentage int // 0 until a Balance exists
		Needs             []core.NonExcludableNeed
		Goals             []core.SavingsGoal
	}

	// BalancePoint is the total balance at the end of Date, a UTC day.
	BalancePoint struct {
		Date    time.Time
		Balance decimal.Decimal
	}
)

func newTransactionView(tx core.Transaction) TransactionView {
	return TransactionView{
		ID:          tx.ID,
		Amount:      tx.Amount,
		Type:        tx.Type.String(),
		Category:    tx.Category,
		Description: tx.Description,
		Date:        tx.Date,
	}
}

// GetBalance never creates a Balance; users without one read as all zeros.
func (s *Service) GetBalance(ctx context.Context, userID string) (BalanceView, error) {
	b, found, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return BalanceView{}, err
	}
	if !found {
		return BalanceView{TotalBalance: decimal.Zero, ReserveBalance: decimal.Zero}, nil
	}
	return BalanceView{
		TotalBalance:      b.TotalBalance,
		ReserveBalance:    b.ReserveBalance,
		ReservePercentage: b.ReservePercentage,
	}, nil
}

func (s *Service) History(ctx context.Context, userID string, q HistoryQuery) (TransactionHistory, error) {
	f := TransactionFilter{
		UserID:    userID,
		From:      q.From,
		To:        q.To,
		Category:  strings.TrimSpace(q.Category),
		MinAmount: q.MinAmount,
		MaxAmount: q.MaxAmount,
		Search:    strings.TrimSpace(q.Search),
	}
	if q.Period != "" && q.From.IsZero() && q.To.IsZero() {
		now := s.Now()
		f.To = now
		f.From, _ = historyPeriodStart(q.Period, now)
	}

	txs, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		return TransactionHistory{}, err
	}

	totals := core.Totals(txs)
	out := TransactionHistory{
		Transactions:  make([]TransactionView, 0, len(txs)),
		TotalCount:    totals.Count,
		TotalIncome:   totals.Income,
		TotalExpenses: totals.Expenses,
	}
	for _, tx := range txs {
		out.Transactions = append(out.Transactions, newTransactionView(tx))
	}
	return out, nil
}

func (s *Service) ListNeeds(ctx context.Context, userID string) ([]core.NonExcludableNeed, error) {
	return s.store.ListNeeds(ctx, userID)
}

func (s *Service) Settings(ctx context.Context, userID string) (SettingsView, error) {
	var view SettingsView
	b, found, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return view, err
	}
	if found {
		view.ReservePercentage = b.ReservePercentage
	}
	view.Needs, err = s.store.ListNeeds(ctx, userID)
	if err != nil {
		return view, err
	}
	view.Goals, err = s.store.ListGoals(ctx, userID)
	if err != nil {
		return view, err
	}
	return view, nil
}

// BalanceSeries rebuilds the end-of-day total balance for every day since the
// start of period on which a transaction was posted, plus today. It walks the
// log backwards from the current TotalBalance, oldest point first.
func (s *Service) BalanceSeries(ctx context.Context, userID, period string) ([]BalancePoint, error) {
	now := s.Now()
	current, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, TransactionFilter{
		UserID: userID,
		From:   reportPeriodStart(period, now),
	})
	if err != nil {
		return nil, err
	}

	today := startOfDay(now)
	running := current.TotalBalance
	points := make([]BalancePoint, 0, len(txs)+1)
	seen := make(map[time.Time]bool)
	add := func(day time.Time) {
		if !seen[day] {
			seen[day] = true
			points = append(points, BalancePoint{Date: day, Balance: running})
		}
	}
	for _, tx := range txs {
		day := startOfDay(tx.Date)
		if !day.After(today) {
			add(today)
		}
		add(day)
		switch tx.Type {
		case core.Income:
			running = running.Sub(tx.Amount)
		case core.Expense:
			running = running.Add(tx.Amount)
		}
	}
	add(today)

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ExpenseReport groups the user's expenses since the start of period by
// category, largest first. Percentages are shares of the period total
// rounded to one decimal place.
func (s *Service) ExpenseReport(ctx context.Context, userID, period string) ([]core.CategoryAmount, error) {
	now := s.Now()
	txs, err := s.store.ListTransactions(ctx, TransactionFilter{
		UserID: userID,
		Type:   core.Expense,
		From:   reportPeriodStart(period, now),
	})
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, tx := range txs {
		byCategory[tx.Category] = byCategory[tx.Category].Add(tx.Amount)
		total = total.Add(tx.Amount)
	}

	out := make([]core.CategoryAmount, 0, len(byCategory))
	for category, amount := range byCategory {
		pct := decimal.Zero
		if total.IsPositive() {
			pct = amount.Div(total).Mul(decimal.NewFromInt(100)).Round(1)
		}
		out = append(out, core.CategoryAmount{Category: category, Amount: amount, Percentage: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func historyPeriodStart(period string, now time.Time) (time.Time, bool) {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "week":
		return now.AddDate(0, 0, -7), true
	case "month":
		return now.AddDate(0, -1, 0), true
	case "3m":
		return now.AddDate(0, -3, 0), true
	case "6m":
		return now.AddDate(0, -6, 0), true
	case "year":
		return now.AddDate(-1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// reportPeriodStart falls back to one month for unknown periods.
func reportPeriodStart(period string, now time.Time) time.Time {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "week":
		return now.AddDate(0, 0, -7)
	case "3months":
		return now.AddDate(0, -3, 0)
	case "6months":
		return now.AddDate(0, -6, 0)
	case "year":
		return now.AddDate(-1, 0, 0)
	case "all":
		return now.AddDate(-10, 0, 0)
	default:
		return now.AddDate(0, -1, 0)
	}
}
