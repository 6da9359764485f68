// Package memory is an in-process ledger store. Units of work are staged
// privately and applied under the store mutex on commit, so a failing
// callback leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"finledger/internal/core"
	"finledger/internal/ledger"
)

// FaultFunc lets tests fail a store operation. op is the method name.
type FaultFunc func(op, userID string) error

type Store struct {
	mu       sync.Mutex
	balances map[string]core.Balance
	users    map[string]core.User
	txs      []core.Transaction
	needs    []core.NonExcludableNeed
	goals    []core.SavingsGoal
	runs     map[ledger.RunKey]string
	outbox   []core.Notification
	fault    FaultFunc
}

func New() *Store {
	return &Store{
		balances: make(map[string]core.Balance),
		users:    make(map[string]core.User),
		runs:     make(map[ledger.RunKey]string),
	}
}

// SetFault installs f; nil clears it.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

func (s *Store) check(op, userID string) error {
	s.mu.Lock()
	f := s.fault
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	if err := f(op, userID); err != nil {
		return core.StorageError(op, err)
	}
	return nil
}

// Seed writes records directly, bypassing units of work. Used to set up fixtures.
func (s *Store) Seed(users []core.User, balances []core.Balance, needs []core.NonExcludableNeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[u.ID] = u
	}
	for _, b := range balances {
		s.balances[b.UserID] = b
	}
	s.needs = append(s.needs, needs...)
}

func (s *Store) WithinUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow ledger.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u := &unitOfWork{
		s:        s,
		balances: make(map[string]core.Balance),
		users:    make(map[string]core.User),
		runs:     make(map[ledger.RunKey]string),
	}
	if err := fn(ctx, u); err != nil {
		return err
	}
	return u.commit()
}

func (s *Store) GetBalance(_ context.Context, userID string) (core.Balance, bool, error) {
	if err := s.check("GetBalance", userID); err != nil {
		return core.Balance{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[userID]
	return b, ok, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (core.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	return u, ok, nil
}

func (s *Store) ListNeeds(_ context.Context, userID string) ([]core.NonExcludableNeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsFor(userID), nil
}

func (s *Store) ListGoals(_ context.Context, userID string) ([]core.SavingsGoal, error) {
	if err := s.check("ListGoals", userID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.SavingsGoal{}
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) needsFor(userID string) []core.NonExcludableNeed {
	out := []core.NonExcludableNeed{}
	for _, n := range s.needs {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) LoadUsersEligibleForSalary(_ context.Context, day int) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.User
	for _, u := range s.users {
		if u.SalaryDueOn(day) {
			out = append(out, u)
		}
	}
	sortUsers(out)
	return out, nil
}

func (s *Store) LoadAllUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sortUsers(out)
	return out, nil
}

func (s *Store) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func sortUsers(us []core.User) {
	sort.Slice(us, func(i, j int) bool { return us[i].ID < us[j].ID })
}

type unitOfWork struct {
	s        *Store
	balances map[string]core.Balance
	users    map[string]core.User
	txs      []core.Transaction
	needs    []core.NonExcludableNeed
	goals    []core.SavingsGoal
	runs     map[ledger.RunKey]string
}

func (u *unitOfWork) LoadBalance(_ context.Context, userID string) (core.Balance, bool, error) {
	if err := u.s.check("LoadBalance", userID); err != nil {
		return core.Balance{}, false, err
	}
	if b, ok := u.balances[userID]; ok {
		return b, true, nil
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	b, ok := u.s.balances[userID]
	return b, ok, nil
}

func (u *unitOfWork) SaveBalance(_ context.Context, b core.Balance) error {
	if err := u.s.check("SaveBalance", b.UserID); err != nil {
		return err
	}
	u.balances[b.UserID] = b
	return nil
}

func (u *unitOfWork) InsertTransaction(_ context.Context, tx core.Transaction) error {
	if err := u.s.check("InsertTransaction", tx.UserID); err != nil {
		return err
	}
	u.txs = append(u.txs, tx)
	return nil
}

func (u *unitOfWork) LoadNeeds(_ context.Context, userID string) ([]core.NonExcludableNeed, error) {
	if err := u.s.check("LoadNeeds", userID); err != nil {
		return nil, err
	}
	u.s.mu.Lock()
	out := u.s.needsFor(userID)
	u.s.mu.Unlock()
	for _, n := range u.needs {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (u *unitOfWork) InsertNeed(_ context.Context, n core.NonExcludableNeed) error {
	if err := u.s.check("InsertNeed", n.UserID); err != nil {
		return err
	}
	u.needs = append(u.needs, n)
	return nil
}

func (u *unitOfWork) InsertGoal(_ context.Context, g core.SavingsGoal) error {
	if err := u.s.check("InsertGoal", g.UserID); err != nil {
		return err
	}
	u.goals = append(u.goals, g)
	return nil
}

func (u *unitOfWork) LoadUser(_ context.Context, userID string) (core.User, bool, error) {
	if usr, ok := u.users[userID]; ok {
		return usr, true, nil
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	usr, ok := u.s.users[userID]
	return usr, ok, nil
}

func (u *unitOfWork) SaveUser(_ context.Context, usr core.User) error {
	if err := u.s.check("SaveUser", usr.ID); err != nil {
		return err
	}
	u.users[usr.ID] = usr
	return nil
}

func (u *unitOfWork) HasRun(_ context.Context, key ledger.RunKey) (bool, error) {
	if _, ok := u.runs[key]; ok {
		return true, nil
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	_, ok := u.s.runs[key]
	return ok, nil
}

func (u *unitOfWork) RecordRun(ctx context.Context, key ledger.RunKey, transactionID string) error {
	if err := u.s.check("RecordRun", key.UserID); err != nil {
		return err
	}
	if ok, _ := u.HasRun(ctx, key); ok {
		return fmt.Errorf("%w: %s/%s/%s", core.ErrRunConflict, key.Job, key.UserID, key.Period)
	}
	u.runs[key] = transactionID
	return nil
}

func (u *unitOfWork) commit() error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for key := range u.runs {
		if _, ok := u.s.runs[key]; ok {
			return fmt.Errorf("%w: %s/%s/%s", core.ErrRunConflict, key.Job, key.UserID, key.Period)
		}
	}
	for k, v := range u.runs {
		u.s.runs[k] = v
	}
	for id, usr := range u.users {
		u.s.users[id] = usr
	}
	for id, b := range u.balances {
		u.s.balances[id] = b
	}
	u.s.txs = append(u.s.txs, u.txs...)
	u.s.needs = append(u.s.needs, u.needs...)
	u.s.goals = append(u.s.goals, u.goals...)
	return nil
}

// Enqueue appends a pending notification.
func (s *Store) Enqueue(_ context.Context, n core.Notification) error {
	if err := s.check("Enqueue", n.UserID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, n)
	return nil
}

// Due returns up to limit pending or failed notifications whose next attempt is not after now.
func (s *Store) Due(_ context.Context, now time.Time, limit int) ([]core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Notification
	for _, n := range s.outbox {
		if limit > 0 && len(out) >= limit {
			break
		}
		if (n.Status == core.NotificationPending || n.Status == core.NotificationFailed) && !n.NextAttemptAt.After(now) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) MarkSent(_ context.Context, id string, _ time.Time) error {
	return s.updateNotification(id, func(n *core.Notification) {
		n.Status = core.NotificationSent
		n.Attempts++
		n.LastError = ""
	})
}

func (s *Store) MarkFailed(_ context.Context, id string, next time.Time, lastErr string, dead bool) error {
	return s.updateNotification(id, func(n *core.Notification) {
		n.Attempts++
		n.LastError = lastErr
		n.NextAttemptAt = next
		n.Status = core.NotificationFailed
		if dead {
			n.Status = core.NotificationDead
		}
	})
}

func (s *Store) updateNotification(id string, apply func(*core.Notification)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			apply(&s.outbox[i])
			return nil
		}
	}
	return core.StorageError("update notification", fmt.Errorf("notification %s not found", id))
}

// Notifications returns a snapshot of the outbox.
func (s *Store) Notifications() []core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Notification(nil), s.outbox...)
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(context.Context) error { return nil }
