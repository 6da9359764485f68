package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseTransactionType(t *testing.T) {
	cases := []struct {
		in   string
		want TransactionType
		ok   bool
	}{
		{"income", Income, true},
		{"INCOME", Income, true},
		{" Expense ", Expense, true},
		{"transfer", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseTransactionType(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.want, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidTransactionType) {
			t.Fatalf("%q expected ErrInvalidTransactionType, got %v", tc.in, err)
		}
	}
}

func TestValidateReservePercentage(t *testing.T) {
	for _, pct := range AllowedReservePercentages {
		if err := ValidateReservePercentage(pct); err != nil {
			t.Fatalf("%d expected ok, got %v", pct, err)
		}
	}
	for _, pct := range []int{0, 2, 12, 31, 100, -10} {
		if err := ValidateReservePercentage(pct); !errors.Is(err, ErrInvalidReservePercentage) {
			t.Fatalf("%d expected ErrInvalidReservePercentage, got %v", pct, err)
		}
	}
	if err := ValidateReservePercentage(DefaultReservePercentage); err != nil {
		t.Fatalf("default reserve percentage must be allowed: %v", err)
	}
}

func TestUserSalaryDueOn(t *testing.T) {
	u := User{ID: "u1", Salary: decimal.NewFromInt(1000), SalaryDay: 15}
	if !u.SalaryDueOn(15) {
		t.Fatalf("expected salary due on day 15")
	}
	if u.SalaryDueOn(14) {
		t.Fatalf("expected salary not due on day 14")
	}
	if (User{ID: "u2", Salary: decimal.Zero, SalaryDay: 15}).SalaryDueOn(15) {
		t.Fatalf("zero salary must never be due")
	}
	if (User{ID: "u3", Salary: decimal.NewFromInt(10)}).SalaryDueOn(0) {
		t.Fatalf("unset salary day must never be due")
	}
}

func TestStorageErrorKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := StorageError("insert transaction", cause)
	if !errors.Is(err, ErrStorageFailure) || !errors.Is(err, cause) {
		t.Fatalf("expected both sentinel and cause in chain, got %v", err)
	}
	if StorageError("noop", nil) != nil {
		t.Fatalf("nil cause must stay nil")
	}
}

func TestTotals(t *testing.T) {
	txs := []Transaction{
		{Type: Income, Amount: decimal.NewFromInt(100)},
		{Type: Expense, Amount: decimal.RequireFromString("40.50")},
		{Type: Income, Amount: decimal.RequireFromString("0.50")},
	}
	got := Totals(txs)
	if got.Count != 3 || FormatAmount(got.Net()) != "60.00" {
		t.Fatalf("unexpected totals %+v net=%s", got, got.Net())
	}
}

func TestNeedValidate(t *testing.T) {
	good := NonExcludableNeed{Category: "Rent", Amount: decimal.NewFromInt(300)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (NonExcludableNeed{Category: " ", Amount: decimal.NewFromInt(1)}).Validate(); !errors.Is(err, ErrInvalidNeed) {
		t.Fatalf("expected ErrInvalidNeed, got %v", err)
	}
	if err := (NonExcludableNeed{Category: "Rent"}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestGoalValidate(t *testing.T) {
	tests := []struct {
		name string
		goal SavingsGoal
		want error
	}{
		{"valid", SavingsGoal{GoalName: "Holiday", TargetAmount: decimal.NewFromInt(1500)}, nil},
		{"empty name", SavingsGoal{GoalName: "  ", TargetAmount: decimal.NewFromInt(1)}, ErrInvalidGoal},
		{"long name", SavingsGoal{GoalName: strings.Repeat("x", MaxGoalNameLength+1), TargetAmount: decimal.NewFromInt(1)}, ErrInvalidGoal},
		{"zero target", SavingsGoal{GoalName: "Car"}, ErrInvalidAmount},
		{"negative current", SavingsGoal{GoalName: "Car", TargetAmount: decimal.NewFromInt(1), CurrentAmount: decimal.NewFromInt(-1)}, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.goal.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGoalProgress(t *testing.T) {
	if got := GoalProgress(decimal.NewFromInt(1), decimal.NewFromInt(3)); got.String() != "33.3" {
		t.Fatalf("progress = %s, want 33.3", got)
	}
	if got := GoalProgress(decimal.NewFromInt(5), decimal.Zero); !got.IsZero() {
		t.Fatalf("progress with zero target = %s", got)
	}
}
