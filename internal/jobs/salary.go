package jobs

import (
	"context"
	"sync/atomic"

	"finledger/internal/core"
	"finledger/internal/ledger"
	"finledger/internal/notify"
)

const (
	SalaryCategory    = "Salary"
	SalaryDescription = "Monthly salary credit"
)

// SalaryCreditJob credits each user whose salary day is today (UTC) with
// their salary as Income, which also moves the reserve cut.
type SalaryCreditJob struct {
	runner  *Runner
	running atomic.Bool
}

func NewSalaryCreditJob(r *Runner) *SalaryCreditJob {
	return &SalaryCreditJob{runner: r}
}

// Run processes every eligible user once. The error is non-nil only when
// the run could not start; per-user failures are in the Report.
func (j *SalaryCreditJob) Run(ctx context.Context) (Report, error) {
	return j.runner.execute(ctx, salaryDefinition{}, &j.running)
}

type salaryDefinition struct{}

func (salaryDefinition) name() string { return SalaryJobName }

// selectUsers relies on exact day matching: a salary day of 31 never
// matches in a 30-day month.
func (salaryDefinition) selectUsers(ctx context.Context, store ledger.Reader, run runInfo) ([]core.User, error) {
	return store.LoadUsersEligibleForSalary(ctx, run.Now.Day())
}

func (salaryDefinition) post(ctx context.Context, m *ledger.Mutation, run runInfo) (core.Transaction, core.User, error) {
	// re-read under the lock: the profile may have changed since selection
	u, err := m.User(ctx)
	if err != nil {
		return core.Transaction{}, core.User{}, err
	}
	if !u.SalaryDueOn(run.Now.Day()) {
		return core.Transaction{}, u, errNothingDue
	}
	done, err := m.HasRun(ctx, SalaryJobName, run.Period)
	if err != nil {
		return core.Transaction{}, u, err
	}
	if done {
		return core.Transaction{}, u, errAlreadyPosted
	}

	tx, err := m.Post(ctx, ledger.Posting{
		Amount:      u.Salary,
		Type:        core.Income,
		Category:    SalaryCategory,
		Description: SalaryDescription,
		Date:        run.Now,
	})
	if err != nil {
		return core.Transaction{}, u, err
	}
	if err := m.RecordRun(ctx, SalaryJobName, run.Period, tx.ID); err != nil {
		return core.Transaction{}, u, err
	}
	return tx, u, nil
}

func (salaryDefinition) notify(ctx context.Context, n notify.Notifier, u core.User, tx core.Transaction) error {
	return n.NotifySalaryCredited(ctx, u.ID, tx.Amount, u.CurrencyOrDefault())
}
