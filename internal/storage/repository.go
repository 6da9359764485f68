// Package storage is the SQLite ledger store.
//
// Amounts are stored as decimal TEXT and compared in Go. Timestamps are
// stored as fixed-width UTC TEXT so lexical order is chronological order.
// Writes go through one connection with BEGIN IMMEDIATE, which serializes
// units of work at the database as well as at the per-user lock.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"finledger/internal/core"
	"finledger/internal/ledger"
	"finledger/internal/log"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

// DSN adds the pragmas every connection needs to a database path.
func DSN(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite ledger store ready", log.FieldComponent, log.ComponentStorage, "path", dbPath)
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) WithinUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow ledger.UnitOfWork) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.StorageError("begin unit of work", err)
	}
	if err := fn(ctx, &unitOfWork{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", log.FieldComponent, log.ComponentStorage, "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.StorageError("commit unit of work", err)
	}
	return nil
}

func (r *SQLiteRepository) GetBalance(ctx context.Context, userID string) (core.Balance, bool, error) {
	return loadBalance(ctx, r.db, userID)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, userID string) (core.User, bool, error) {
	return loadUser(ctx, r.db, userID)
}

func (r *SQLiteRepository) ListNeeds(ctx context.Context, userID string) ([]core.NonExcludableNeed, error) {
	return loadNeeds(ctx, r.db, userID)
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, goal_name, target_amount, current_amount FROM savings_goals
		WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, core.StorageError("load goals", err)
	}
	defer rows.Close()

	out := []core.SavingsGoal{}
	for rows.Next() {
		var g core.SavingsGoal
		if err := rows.Scan(&g.ID, &g.UserID, &g.GoalName, &g.TargetAmount, &g.CurrentAmount); err != nil {
			return nil, core.StorageError("scan goal", err)
		}
		g.Progress = core.GoalProgress(g.CurrentAmount, g.TargetAmount)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("load goals", err)
	}
	return out, nil
}

func (r *SQLiteRepository) LoadUsersEligibleForSalary(ctx context.Context, day int) ([]core.User, error) {
	users, err := queryUsers(ctx, r.db, `SELECT id, salary, salary_day, currency, created_at FROM users WHERE salary_day = ? ORDER BY id`, day)
	if err != nil {
		return nil, err
	}
	out := users[:0]
	for _, u := range users {
		if u.SalaryDueOn(day) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) LoadAllUsers(ctx context.Context) ([]core.User, error) {
	return queryUsers(ctx, r.db, `SELECT id, salary, salary_day, currency, created_at FROM users ORDER BY id`)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{f.UserID}
	)
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatTime(f.To))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}

	query := `SELECT id, user_id, amount, type, category, description, date FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date DESC, id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.StorageError("list transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx   core.Transaction
			typ  string
			date string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &typ, &tx.Category, &tx.Description, &date); err != nil {
			return nil, core.StorageError("scan transaction", err)
		}
		tx.Type = core.TransactionType(typ)
		if tx.Date, err = parseTime(date); err != nil {
			return nil, core.StorageError("parse transaction date", err)
		}
		// amount bounds and search are evaluated on decimals, not TEXT
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("list transactions", err)
	}
	return out, nil
}

type unitOfWork struct {
	q queryer
}

func (u *unitOfWork) LoadBalance(ctx context.Context, userID string) (core.Balance, bool, error) {
	return loadBalance(ctx, u.q, userID)
}

func (u *unitOfWork) SaveBalance(ctx context.Context, b core.Balance) error {
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO balances (user_id, total_balance, reserve_balance, reserve_percentage, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_balance = excluded.total_balance,
			reserve_balance = excluded.reserve_balance,
			reserve_percentage = excluded.reserve_percentage,
			updated_at = excluded.updated_at`,
		b.UserID, b.TotalBalance.String(), b.ReserveBalance.String(), b.ReservePercentage, formatTime(b.UpdatedAt))
	return core.StorageError("save balance", err)
}

func (u *unitOfWork) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, type, category, description, date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Amount.String(), string(tx.Type), tx.Category, tx.Description, formatTime(tx.Date))
	return core.StorageError("insert transaction", err)
}

func (u *unitOfWork) LoadNeeds(ctx context.Context, userID string) ([]core.NonExcludableNeed, error) {
	return loadNeeds(ctx, u.q, userID)
}

func (u *unitOfWork) InsertNeed(ctx context.Context, n core.NonExcludableNeed) error {
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO non_excludable_needs (id, user_id, category, amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Category, n.Amount.String(), formatTime(time.Now()))
	return core.StorageError("insert need", err)
}

func (u *unitOfWork) InsertGoal(ctx context.Context, g core.SavingsGoal) error {
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO savings_goals (id, user_id, goal_name, target_amount, current_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.GoalName, g.TargetAmount.String(), g.CurrentAmount.String(), formatTime(time.Now()))
	return core.StorageError("insert goal", err)
}

func (u *unitOfWork) LoadUser(ctx context.Context, userID string) (core.User, bool, error) {
	return loadUser(ctx, u.q, userID)
}

func (u *unitOfWork) SaveUser(ctx context.Context, usr core.User) error {
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO users (id, salary, salary_day, currency, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			salary = excluded.salary,
			salary_day = excluded.salary_day,
			currency = excluded.currency`,
		usr.ID, usr.Salary.String(), usr.SalaryDay, usr.Currency, formatTime(usr.CreatedAt))
	return core.StorageError("save user", err)
}

func (u *unitOfWork) HasRun(ctx context.Context, key ledger.RunKey) (bool, error) {
	var n int
	err := u.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_runs WHERE job_name = ? AND user_id = ? AND period_key = ?`,
		key.Job, key.UserID, key.Period).Scan(&n)
	if err != nil {
		return false, core.StorageError("check job run", err)
	}
	return n > 0, nil
}

func (u *unitOfWork) RecordRun(ctx context.Context, key ledger.RunKey, transactionID string) error {
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO job_runs (job_name, user_id, period_key, transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		key.Job, key.UserID, key.Period, transactionID, formatTime(time.Now()))
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: %s/%s/%s", core.ErrRunConflict, key.Job, key.UserID, key.Period)
	}
	return core.StorageError("record job run", err)
}

func loadBalance(ctx context.Context, q queryer, userID string) (core.Balance, bool, error) {
	var (
		b       core.Balance
		updated string
	)
	err := q.QueryRowContext(ctx, `
		SELECT user_id, total_balance, reserve_balance, reserve_percentage, updated_at
		FROM balances WHERE user_id = ?`, userID).
		Scan(&b.UserID, &b.TotalBalance, &b.ReserveBalance, &b.ReservePercentage, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Balance{}, false, nil
	}
	if err != nil {
		return core.Balance{}, false, core.StorageError("load balance", err)
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Balance{}, false, core.StorageError("parse balance timestamp", err)
	}
	return b, true, nil
}

func loadUser(ctx context.Context, q queryer, userID string) (core.User, bool, error) {
	users, err := queryUsers(ctx, q, `SELECT id, salary, salary_day, currency, created_at FROM users WHERE id = ?`, userID)
	if err != nil {
		return core.User{}, false, err
	}
	if len(users) == 0 {
		return core.User{}, false, nil
	}
	return users[0], true, nil
}

func queryUsers(ctx context.Context, q queryer, query string, args ...any) ([]core.User, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.StorageError("load users", err)
	}
	defer rows.Close()

	var out []core.User
	for rows.Next() {
		var (
			u       core.User
			created string
		)
		if err := rows.Scan(&u.ID, &u.Salary, &u.SalaryDay, &u.Currency, &created); err != nil {
			return nil, core.StorageError("scan user", err)
		}
		if u.CreatedAt, err = parseTime(created); err != nil {
			return nil, core.StorageError("parse user timestamp", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("load users", err)
	}
	return out, nil
}

func loadNeeds(ctx context.Context, q queryer, userID string) ([]core.NonExcludableNeed, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, category, amount FROM non_excludable_needs
		WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, core.StorageError("load needs", err)
	}
	defer rows.Close()

	out := []core.NonExcludableNeed{}
	for rows.Next() {
		var n core.NonExcludableNeed
		if err := rows.Scan(&n.ID, &n.UserID, &n.Category, &n.Amount); err != nil {
			return nil, core.StorageError("scan need", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("load needs", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
