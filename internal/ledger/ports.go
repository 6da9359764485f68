package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// UnitOfWork is the set of reads and writes applied atomically by
// Store.WithinUnitOfWork. Implementations must make reads observe earlier
// writes of the same unit.
type UnitOfWork interface {
	LoadBalance(ctx context.Context, userID string) (core.Balance, bool, error)
	SaveBalance(ctx context.Context, b core.Balance) error
	InsertTransaction(ctx context.Context, tx core.Transaction) error
	LoadNeeds(ctx context.Context, userID string) ([]core.NonExcludableNeed, error)
	InsertNeed(ctx context.Context, n core.NonExcludableNeed) error
	InsertGoal(ctx context.Context, g core.SavingsGoal) error
	LoadUser(ctx context.Context, userID string) (core.User, bool, error)
	SaveUser(ctx context.Context, u core.User) error
	HasRun(ctx context.Context, key RunKey) (bool, error)
	// RecordRun fails with core.ErrRunConflict when key is already present.
	RecordRun(ctx context.Context, key RunKey, transactionID string) error
}

// Reader serves the read-only views and job selection queries outside a unit of work.
type Reader interface {
	GetBalance(ctx context.Context, userID string) (core.Balance, bool, error)
	GetUser(ctx context.Context, userID string) (core.User, bool, error)
	ListNeeds(ctx context.Context, userID string) ([]core.NonExcludableNeed, error)
	ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error)
	LoadUsersEligibleForSalary(ctx context.Context, day int) ([]core.User, error)
	LoadAllUsers(ctx context.Context) ([]core.User, error)
	// ListTransactions returns the user's transactions matching f, newest first.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
}

// Store is the durable ledger. WithinUnitOfWork commits when fn returns nil
// and rolls back every write otherwise.
type Store interface {
	Reader
	WithinUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// RunKey identifies one recurring job posting for one user and period.
type RunKey struct {
	Job    string
	UserID string
	Period string
}

// TransactionFilter narrows ListTransactions. Zero values disable a criterion.
type TransactionFilter struct {
	UserID    string
	From      time.Time
	To        time.Time
	Type      core.TransactionType
	Category  string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Search    string
}

// Match reports whether tx satisfies every criterion of f.
func (f TransactionFilter) Match(tx core.Transaction) bool {
	if f.UserID != "" && tx.UserID != f.UserID {
		return false
	}
	if !f.From.IsZero() && tx.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.Date.After(f.To) {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Category != "" && tx.Category != f.Category {
		return false
	}
	if f.MinAmount != nil && tx.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && tx.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(tx.Description), q) &&
			!strings.Contains(strings.ToLower(tx.Category), q) {
			return false
		}
	}
	return true
}
