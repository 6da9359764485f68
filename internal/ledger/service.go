// Package ledger keeps each user's Balance and transaction log consistent.
//
// Every write goes through Service.Mutate, which holds the user's lock for
// the whole read-modify-write and runs it inside one store unit of work.
// Inside the callback, Mutation.GetOrCreate is the Balance accessor and
// Mutation.Post the transaction recorder; the Balance is flushed once, just
// before commit.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/lock"
	"finledger/internal/log"
)

// Service is safe for concurrent use.
type Service struct {
	store          Store
	locker         lock.Locker
	rounding       core.RoundingMode
	defaultReserve int
	now            func() time.Time
	logger         *slog.Logger
}

type Option func(*Service)

func WithRounding(m core.RoundingMode) Option {
	return func(s *Service) {
		if m.Valid() {
			s.rounding = m
		}
	}
}

// WithDefaultReserve overrides core.DefaultReservePercentage for lazily created balances.
func WithDefaultReserve(pct int) Option {
	return func(s *Service) {
		if core.ValidateReservePercentage(pct) == nil {
			s.defaultReserve = pct
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(store Store, locker lock.Locker, opts ...Option) *Service {
	s := &Service{
		store:          store,
		locker:         locker,
		rounding:       core.RoundHalfAwayFromZero,
		defaultReserve: core.DefaultReservePercentage,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.locker == nil {
		s.locker = lock.NewKeyed()
	}
	s.logger = log.WithComponent(s.logger, log.ComponentLedger)
	return s
}

func (s *Service) Rounding() core.RoundingMode { return s.rounding }

func (s *Service) DefaultReserve() int { return s.defaultReserve }

// Now returns the service clock in UTC.
func (s *Service) Now() time.Time { return s.now().UTC() }

// Store exposes the read side for callers that select users, such as the recurring jobs.
func (s *Service) Store() Reader { return s.store }

// Mutate runs fn under userID's lock inside a single unit of work. Any error
// from fn rolls the unit back; nothing fn staged is persisted.
func (s *Service) Mutate(ctx context.Context, userID string, fn func(ctx context.Context, m *Mutation) error) error {
	if strings.TrimSpace(userID) == "" {
		return core.ErrUserNotFound
	}
	unlock, err := s.locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		return fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()

	return s.store.WithinUnitOfWork(ctx, func(ctx context.Context, uow UnitOfWork) error {
		m := &Mutation{svc: s, uow: uow, userID: userID}
		if err := fn(ctx, m); err != nil {
			return err
		}
		return m.flush(ctx)
	})
}

// Mutation is the per-user view of one unit of work. It is only valid inside
// the Mutate callback that created it.
type Mutation struct {
	svc     *Service
	uow     UnitOfWork
	userID  string
	balance *core.Balance
	dirty   bool
}

func (m *Mutation) UserID() string { return m.userID }

// GetOrCreate returns the user's Balance, constructing an empty one with
// reservePct (or the default when reservePct is 0) if none exists. The
// returned pointer is flushed at the end of the unit of work.
func (m *Mutation) GetOrCreate(ctx context.Context, reservePct int) (*core.Balance, error) {
	if m.balance != nil {
		return m.balance, nil
	}
	b, found, err := m.uow.LoadBalance(ctx, m.userID)
	if err != nil {
		return nil, err
	}
	if !found {
		if reservePct <= 0 {
			reservePct = m.svc.defaultReserve
		}
		b = core.NewBalance(m.userID, reservePct)
		m.dirty = true
	}
	m.balance = &b
	return m.balance, nil
}

// User loads the user's profile, failing with core.ErrUserNotFound when absent.
func (m *Mutation) User(ctx context.Context) (core.User, error) {
	u, found, err := m.uow.LoadUser(ctx, m.userID)
	if err != nil {
		return core.User{}, err
	}
	if !found {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, m.userID)
	}
	return u, nil
}

func (m *Mutation) Needs(ctx context.Context) ([]core.NonExcludableNeed, error) {
	return m.uow.LoadNeeds(ctx, m.userID)
}

// SetReservePercentage changes the rate used by future Income postings.
func (m *Mutation) SetReservePercentage(ctx context.Context, pct int) error {
	if err := core.ValidateReservePercentage(pct); err != nil {
		return err
	}
	b, err := m.GetOrCreate(ctx, 0)
	if err != nil {
		return err
	}
	if b.ReservePercentage != pct {
		b.ReservePercentage = pct
		m.dirty = true
	}
	return nil
}

// Posting is the input of Mutation.Post.
type Posting struct {
	Amount      decimal.Decimal
	Type        core.TransactionType
	Category    string
	Description string
	Date        time.Time // zero means now
}

// Post records one immutable transaction and applies it to the Balance.
// Income adds to the total and moves round(amount*pct/100) into the reserve
// using the percentage in effect now; Expense subtracts from the total only.
func (m *Mutation) Post(ctx context.Context, p Posting) (core.Transaction, error) {
	if !p.Type.Valid() {
		return core.Transaction{}, fmt.Errorf("%w: %q", core.ErrInvalidTransactionType, p.Type)
	}
	amount := m.svc.rounding.Round(p.Amount)
	if !amount.IsPositive() {
		return core.Transaction{}, fmt.Errorf("%w: %s must be greater than zero", core.ErrInvalidAmount, p.Amount)
	}

	b, err := m.GetOrCreate(ctx, 0)
	if err != nil {
		return core.Transaction{}, err
	}

	now := m.svc.Now()
	date := p.Date
	if date.IsZero() {
		date = now
	}
	tx := core.Transaction{
		ID:          core.NewID(),
		UserID:      m.userID,
		Amount:      amount,
		Type:        p.Type,
		Category:    strings.TrimSpace(p.Category),
		Description: strings.TrimSpace(p.Description),
		Date:        date.UTC(),
	}
	if err := m.uow.InsertTransaction(ctx, tx); err != nil {
		return core.Transaction{}, err
	}

	switch p.Type {
	case core.Income:
		b.TotalBalance = b.TotalBalance.Add(amount)
		b.ReserveBalance = b.ReserveBalance.Add(m.svc.rounding.ReserveCut(amount, b.ReservePercentage))
	case core.Expense:
		b.TotalBalance = b.TotalBalance.Sub(amount)
	}
	m.dirty = true
	return tx, nil
}

// HasRun reports whether job already posted for this user in period.
func (m *Mutation) HasRun(ctx context.Context, job, period string) (bool, error) {
	return m.uow.HasRun(ctx, RunKey{Job: job, UserID: m.userID, Period: period})
}

// RecordRun marks job as posted for this user in period, inside the same unit of work.
func (m *Mutation) RecordRun(ctx context.Context, job, period, transactionID string) error {
	return m.uow.RecordRun(ctx, RunKey{Job: job, UserID: m.userID, Period: period}, transactionID)
}

func (m *Mutation) flush(ctx context.Context) error {
	if m.balance == nil || !m.dirty {
		return nil
	}
	m.balance.UpdatedAt = m.svc.Now()
	return m.uow.SaveBalance(ctx, *m.balance)
}
