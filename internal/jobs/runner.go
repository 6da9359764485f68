// Package jobs implements the recurring ledger processes: the salary credit
// and the daily needs deduction.
//
// Each selected user is posted in its own unit of work, so a failure for one
// user never discards another user's committed posting. The run ledger makes
// re-triggering a job within the same period a no-op per user.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finledger/internal/core"
	"finledger/internal/ledger"
	"finledger/internal/log"
	"finledger/internal/notify"
)

const (
	SalaryJobName = "salary_credit"
	NeedsJobName  = "needs_deduction"

	DefaultConcurrency = 4
)

// ErrRunInProgress is returned when a job is triggered while the previous run
// of the same job is still going.
var ErrRunInProgress = errors.New("job run already in progress")

var (
	errAlreadyPosted = errors.New("already posted for period")
	errNothingDue    = errors.New("nothing due")
)

// runInfo is fixed once per run.
type runInfo struct {
	Now         time.Time
	Period      string
	DaysInMonth int
}

// definition is what differs between the two jobs.
type definition interface {
	name() string
	selectUsers(ctx context.Context, store ledger.Reader, run runInfo) ([]core.User, error)
	post(ctx context.Context, m *ledger.Mutation, run runInfo) (core.Transaction, core.User, error)
	notify(ctx context.Context, n notify.Notifier, u core.User, tx core.Transaction) error
}

// Runner executes job definitions against the ledger.
type Runner struct {
	ledger      *ledger.Service
	notifier    notify.Notifier
	concurrency int
	logger      *slog.Logger
}

type RunnerOption func(*Runner)

// WithConcurrency bounds how many users are processed in parallel.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRunner(svc *ledger.Service, notifier notify.Notifier, opts ...RunnerOption) *Runner {
	r := &Runner{
		ledger:      svc,
		notifier:    notifier,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}
	r.logger = log.WithComponent(r.logger, log.ComponentJobs)
	return r
}

func (r *Runner) execute(ctx context.Context, def definition, running *atomic.Bool) (Report, error) {
	if !running.CompareAndSwap(false, true) {
		return Report{Job: def.name()}, ErrRunInProgress
	}
	defer running.Store(false)

	now := r.ledger.Now()
	run := runInfo{
		Now:         now,
		Period:      PeriodFor(def.name()).Key(now),
		DaysInMonth: core.DaysInMonth(now),
	}
	report := Report{
		Job:         def.name(),
		RunID:       core.NewID(),
		Period:      run.Period,
		StartedAt:   now,
		TotalAmount: decimal.Zero,
	}
	logger := r.logger.With(log.FieldJob, report.Job, log.FieldRunID, report.RunID, log.FieldPeriod, report.Period)

	users, err := def.selectUsers(ctx, r.ledger.Store(), run)
	if err != nil {
		report.FinishedAt = r.ledger.Now()
		logger.ErrorContext(ctx, "Failed to select users", "error", err)
		return report, fmt.Errorf("%s: select users: %w", report.Job, err)
	}
	report.Eligible = len(users)
	logger.InfoContext(ctx, "Job run started", log.FieldOperation, log.OpRunJob, "eligible", report.Eligible, "concurrency", r.concurrency)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.concurrency)

	record := func(apply func(*Report)) {
		mu.Lock()
		apply(&report)
		mu.Unlock()
	}

	for i, u := range users {
		if ctx.Err() != nil {
			record(func(rep *Report) { rep.Skipped += len(users) - i })
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				record(func(rep *Report) { rep.Skipped++ })
				return nil
			}
			r.processUser(ctx, def, run, u, logger, record)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = r.ledger.Now()
	logger.InfoContext(ctx, "Job run complete",
		"eligible", report.Eligible,
		"processed", report.Processed,
		"duplicates", report.Duplicates,
		"nothing_due", report.NothingDue,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"notify_failures", report.NotifyFailures,
		"total_amount", core.FormatAmount(report.TotalAmount))
	return report, nil
}

func (r *Runner) processUser(ctx context.Context, def definition, run runInfo, u core.User, logger *slog.Logger, record func(func(*Report))) {
	var (
		tx      core.Transaction
		current core.User
	)
	err := r.ledger.Mutate(ctx, u.ID, func(ctx context.Context, m *ledger.Mutation) error {
		var err error
		tx, current, err = def.post(ctx, m, run)
		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, errAlreadyPosted), errors.Is(err, core.ErrRunConflict):
		logger.DebugContext(ctx, "Already posted for period", log.FieldUserID, u.ID)
		record(func(rep *Report) { rep.Duplicates++ })
		return
	case errors.Is(err, errNothingDue):
		record(func(rep *Report) { rep.NothingDue++ })
		return
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		record(func(rep *Report) { rep.Skipped++ })
		return
	default:
		logger.ErrorContext(ctx, "Failed to post for user", log.NewFields().WithUser(u.ID).WithError(err).ToSlice()...)
		record(func(rep *Report) {
			rep.Failed++
			rep.Failures = append(rep.Failures, Failure{UserID: u.ID, Error: err.Error()})
		})
		return
	}

	logger.DebugContext(ctx, "Posted for user",
		log.NewFields().WithUser(u.ID).WithPosting(tx.ID, tx.Amount, tx.Category).ToSlice()...)

	// the posting is committed; a cancelled run must not lose its notification
	nerr := def.notify(context.WithoutCancel(ctx), r.notifier, current, tx)
	if nerr != nil {
		logger.ErrorContext(ctx, "Failed to queue notification", log.NewFields().WithUser(u.ID).WithError(nerr).ToSlice()...)
	}
	record(func(rep *Report) {
		rep.Processed++
		rep.TotalAmount = rep.TotalAmount.Add(tx.Amount)
		if nerr != nil {
			rep.NotifyFailures++
		}
	})
}
