package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// DefaultReservePercentage is applied whenever a Balance is created lazily,
// both at registration and on a user's first transaction.
const DefaultReservePercentage = 10

// DefaultCurrency is reported for users that never configured one.
const DefaultCurrency = "USD"

// AllowedReservePercentages lists the only values accepted by SetReservePercentage.
var AllowedReservePercentages = []int{1, 3, 5, 10, 15, 20, 25, 30}

type (
	TransactionType string

	// Balance is the per-user aggregate. ReserveBalance is an informational
	// side-ledger and is not subtracted from TotalBalance.
	Balance struct {
		UserID            string
		TotalBalance      decimal.Decimal
		ReserveBalance    decimal.Decimal
		ReservePercentage int
		UpdatedAt         time.Time
	}

	// Transaction is immutable once recorded. Amount is always a positive magnitude.
	Transaction struct {
		ID          string
		UserID      string
		Amount      decimal.Decimal
		Type        TransactionType
		Category    string
		Description string
		Date        time.Time
	}

	// NonExcludableNeed is a monthly obligation amortized into a daily deduction.
	NonExcludableNeed struct {
		ID       string
		UserID   string
		Category string
		Amount   decimal.Decimal
	}

	// SavingsGoal is a named target the user saves towards. Progress is the
	// percentage of TargetAmount reached, rounded to one decimal place.
	SavingsGoal struct {
		ID            string
		UserID        string
		GoalName      string
		TargetAmount  decimal.Decimal
		CurrentAmount decimal.Decimal
		Progress      decimal.Decimal
	}

	// User carries the profile fields the recurring jobs select on.
	User struct {
		ID        string
		Salary    decimal.Decimal
		SalaryDay int // 0 when not configured
		Currency  string
		CreatedAt time.Time
	}
)

var (
	ErrInvalidAmount              = errors.New("invalid amount")
	ErrInvalidTransactionType     = errors.New("invalid transaction type")
	ErrInvalidReservePercentage   = errors.New("invalid reserve percentage")
	ErrUserNotFound               = errors.New("user not found")
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
	ErrStorageFailure             = errors.New("storage failure")
	ErrInvalidNeed                = errors.New("invalid non-excludable need")
	ErrInvalidGoal                = errors.New("invalid savings goal")
	ErrInvalidSalaryDay           = errors.New("invalid salary day")
	ErrRunConflict                = errors.New("job run already recorded")
)

// StorageError tags err as a storage failure while keeping the driver cause in the chain.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}

// ParseTransactionType accepts "income" or "expense" in any letter case.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	default:
		return "", fmt.Errorf("%w: %q must be 'income' or 'expense'", ErrInvalidTransactionType, s)
	}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t TransactionType) String() string {
	return string(t)
}

// ValidateReservePercentage reports whether pct belongs to AllowedReservePercentages.
func ValidateReservePercentage(pct int) error {
	if !slices.Contains(AllowedReservePercentages, pct) {
		return fmt.Errorf("%w: %d is not one of %v", ErrInvalidReservePercentage, pct, AllowedReservePercentages)
	}
	return nil
}

// NewBalance returns an empty balance for userID with the given reserve rate.
func NewBalance(userID string, reservePercentage int) Balance {
	return Balance{
		UserID:            userID,
		TotalBalance:      decimal.Zero,
		ReserveBalance:    decimal.Zero,
		ReservePercentage: reservePercentage,
	}
}

// NewID returns a random identifier for ledger records.
func NewID() string {
	return uuid.NewString()
}

// SalaryDueOn reports whether the user gets a salary credit on the given day of month.
// Days past the end of a short month never match.
func (u User) SalaryDueOn(day int) bool {
	return u.Salary.IsPositive() && u.SalaryDay > 0 && u.SalaryDay == day
}

// CurrencyOrDefault returns the configured currency, falling back to DefaultCurrency.
func (u User) CurrencyOrDefault() string {
	if c := strings.TrimSpace(u.Currency); c != "" {
		return c
	}
	return DefaultCurrency
}

func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrUserNotFound
	}
	if u.Salary.IsNegative() {
		return fmt.Errorf("%w: salary cannot be negative", ErrInvalidAmount)
	}
	if u.SalaryDay < 0 || u.SalaryDay > 31 {
		return fmt.Errorf("%w: %d", ErrInvalidSalaryDay, u.SalaryDay)
	}
	return nil
}

func (n NonExcludableNeed) Validate() error {
	if strings.TrimSpace(n.Category) == "" {
		return fmt.Errorf("%w: empty category", ErrInvalidNeed)
	}
	if !n.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// MaxGoalNameLength bounds SavingsGoal.GoalName, in characters.
const MaxGoalNameLength = 200

func (g SavingsGoal) Validate() error {
	name := strings.TrimSpace(g.GoalName)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidGoal)
	}
	if utf8.RuneCountInString(name) > MaxGoalNameLength {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidGoal, MaxGoalNameLength)
	}
	if !g.TargetAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if g.CurrentAmount.IsNegative() {
		return fmt.Errorf("%w: current amount cannot be negative", ErrInvalidAmount)
	}
	return nil
}

// GoalProgress returns current as a percentage of target, rounded to one
// decimal place. A non-positive target yields zero.
func GoalProgress(current, target decimal.Decimal) decimal.Decimal {
	if !target.IsPositive() {
		return decimal.Zero
	}
	return current.Div(target).Mul(decimal.NewFromInt(100)).Round(1)
}
