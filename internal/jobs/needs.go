package jobs

import (
	"context"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/ledger"
	"finledger/internal/notify"
)

const (
	NeedsCategory             = "Needs"
	NeedsDescription          = "Daily needs deduction"
	NeedsNotificationCategory = "Daily Needs"
)

// NeedsDeductionJob posts, for every user with at least one need, one
// Expense of round(sum(needs) / daysInMonth, 2).
type NeedsDeductionJob struct {
	runner  *Runner
	running atomic.Bool
}

func NewNeedsDeductionJob(r *Runner) *NeedsDeductionJob {
	return &NeedsDeductionJob{runner: r}
}

func (j *NeedsDeductionJob) Run(ctx context.Context) (Report, error) {
	return j.runner.execute(ctx, needsDefinition{rounding: j.runner.ledger.Rounding()}, &j.running)
}

type needsDefinition struct {
	rounding core.RoundingMode
}

func (needsDefinition) name() string { return NeedsJobName }

func (needsDefinition) selectUsers(ctx context.Context, store ledger.Reader, _ runInfo) ([]core.User, error) {
	return store.LoadAllUsers(ctx)
}

func (d needsDefinition) post(ctx context.Context, m *ledger.Mutation, run runInfo) (core.Transaction, core.User, error) {
	u, err := m.User(ctx)
	if err != nil {
		return core.Transaction{}, core.User{}, err
	}
	needs, err := m.Needs(ctx)
	if err != nil {
		return core.Transaction{}, u, err
	}
	if len(needs) == 0 {
		return core.Transaction{}, u, errNothingDue
	}

	total := decimal.Zero
	for _, n := range needs {
		total = total.Add(n.Amount)
	}
	daily := d.rounding.DailyAmount(total, run.DaysInMonth)
	if !daily.IsPositive() {
		return core.Transaction{}, u, errNothingDue
	}

	done, err := m.HasRun(ctx, NeedsJobName, run.Period)
	if err != nil {
		return core.Transaction{}, u, err
	}
	if done {
		return core.Transaction{}, u, errAlreadyPosted
	}

	tx, err := m.Post(ctx, ledger.Posting{
		Amount:      daily,
		Type:        core.Expense,
		Category:    NeedsCategory,
		Description: NeedsDescription,
		Date:        run.Now,
	})
	if err != nil {
		return core.Transaction{}, u, err
	}
	if err := m.RecordRun(ctx, NeedsJobName, run.Period, tx.ID); err != nil {
		return core.Transaction{}, u, err
	}
	return tx, u, nil
}

func (needsDefinition) notify(ctx context.Context, n notify.Notifier, u core.User, tx core.Transaction) error {
	return n.NotifyDailyDeduction(ctx, u.ID, NeedsNotificationCategory, tx.Amount, u.CurrencyOrDefault())
}
