package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/log"
)

// TransactionInput is a caller-supplied transaction. Type is matched case-insensitively.
type TransactionInput struct {
	Amount      decimal.Decimal
	Type        string
	Category    string
	Description string
	Date        time.Time
}

// PostTransaction validates in and, for a registered user, posts it. A user
// without a Balance gets one with the default reserve percentage.
func (s *Service) PostTransaction(ctx context.Context, userID string, in TransactionInput) (TransactionView, error) {
	typ, err := core.ParseTransactionType(in.Type)
	if err != nil {
		return TransactionView{}, err
	}
	if !s.rounding.Round(in.Amount).IsPositive() {
		return TransactionView{}, fmt.Errorf("%w: %s must be greater than zero", core.ErrInvalidAmount, in.Amount)
	}

	var tx core.Transaction
	err = s.Mutate(ctx, userID, func(ctx context.Context, m *Mutation) error {
		if _, err := m.User(ctx); err != nil {
			return err
		}
		posted, err := m.Post(ctx, Posting{
			Amount:      in.Amount,
			Type:        typ,
			Category:    in.Category,
			Description: in.Description,
			Date:        in.Date,
		})
		if err != nil {
			return err
		}
		tx = posted
		return nil
	})
	if err != nil {
		return TransactionView{}, err
	}

	fields := log.NewFields().WithUser(userID).WithOperation(log.OpPost).WithPosting(tx.ID, tx.Amount, tx.Category)
	s.logger.InfoContext(ctx, "Transaction posted", append(fields.ToSlice(), "type", tx.Type)...)
	return newTransactionView(tx), nil
}

// SetReservePercentage applies pct to future Income postings only.
func (s *Service) SetReservePercentage(ctx context.Context, userID string, pct int) error {
	if err := core.ValidateReservePercentage(pct); err != nil {
		return err
	}
	err := s.Mutate(ctx, userID, func(ctx context.Context, m *Mutation) error {
		if _, err := m.User(ctx); err != nil {
			return err
		}
		return m.SetReservePercentage(ctx, pct)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Reserve percentage updated",
		log.FieldUserID, userID, log.FieldOperation, log.OpUpdate, "reserve_percentage", pct)
	return nil
}

// AddNeed registers a monthly obligation picked up by the needs deduction job.
func (s *Service) AddNeed(ctx context.Context, userID, category string, amount decimal.Decimal) (core.NonExcludableNeed, error) {
	need := core.NonExcludableNeed{
		ID:       core.NewID(),
		UserID:   userID,
		Category: strings.TrimSpace(category),
		Amount:   s.rounding.Round(amount),
	}
	if err := need.Validate(); err != nil {
		return core.NonExcludableNeed{}, err
	}
	err := s.Mutate(ctx, userID, func(ctx context.Context, m *Mutation) error {
		if _, err := m.User(ctx); err != nil {
			return err
		}
		return m.uow.InsertNeed(ctx, need)
	})
	if err != nil {
		return core.NonExcludableNeed{}, err
	}
	return need, nil
}

// AddGoal records a savings goal with nothing saved yet.
func (s *Service) AddGoal(ctx context.Context, userID, name string, target decimal.Decimal) (core.SavingsGoal, error) {
	goal := core.SavingsGoal{
		ID:            core.NewID(),
		UserID:        userID,
		GoalName:      strings.TrimSpace(name),
		TargetAmount:  s.rounding.Round(target),
		CurrentAmount: decimal.Zero,
		Progress:      decimal.Zero,
	}
	if err := goal.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	err := s.Mutate(ctx, userID, func(ctx context.Context, m *Mutation) error {
		if _, err := m.User(ctx); err != nil {
			return err
		}
		return m.uow.InsertGoal(ctx, goal)
	})
	if err != nil {
		return core.SavingsGoal{}, err
	}
	return goal, nil
}

// Profile is the mutable part of a user record.
type Profile struct {
	Salary    decimal.Decimal
	SalaryDay int
	Currency  string
}

// RegisterUser creates or updates a user's profile. A first registration also
// creates the Balance with the default reserve percentage.
func (s *Service) RegisterUser(ctx context.Context, userID string, p Profile) (core.User, error) {
	u := core.User{
		ID:        strings.TrimSpace(userID),
		Salary:    s.rounding.Round(p.Salary),
		SalaryDay: p.SalaryDay,
		Currency:  strings.ToUpper(strings.TrimSpace(p.Currency)),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}

	created := false
	err := s.Mutate(ctx, u.ID, func(ctx context.Context, m *Mutation) error {
		existing, found, err := m.uow.LoadUser(ctx, u.ID)
		if err != nil {
			return err
		}
		if found {
			u.CreatedAt = existing.CreatedAt
		} else {
			u.CreatedAt = s.Now()
			created = true
		}
		if err := m.uow.SaveUser(ctx, u); err != nil {
			return err
		}
		_, err = m.GetOrCreate(ctx, 0)
		return err
	})
	if err != nil {
		return core.User{}, err
	}
	fields := log.NewFields().WithUser(u.ID).WithOperation(log.OpRegister)
	s.logger.InfoContext(ctx, "User profile saved", append(fields.ToSlice(), "created", created, "salary_day", u.SalaryDay)...)
	return u, nil
}
