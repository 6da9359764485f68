// Package core provides the ledger domain types and decimal money helpers.
//
// All monetary values are shopspring decimals rounded to two places. The
// rounding rule is configurable because the legacy system rounded half to
// even, while new deployments round half away from zero.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for every stored amount.
const Scale = 2

type RoundingMode string

const (
	// RoundHalfAwayFromZero rounds 0.125 to 0.13 and -0.125 to -0.13.
	RoundHalfAwayFromZero RoundingMode = "half_away_from_zero"
	// RoundBankers rounds half to even: 0.125 to 0.12, 0.135 to 0.14.
	RoundBankers RoundingMode = "bankers"
)

var hundred = decimal.NewFromInt(100)

func (m RoundingMode) Valid() bool {
	return m == RoundHalfAwayFromZero || m == RoundBankers
}

// Round rounds d to Scale places. Unknown modes fall back to half away from zero.
func (m RoundingMode) Round(d decimal.Decimal) decimal.Decimal {
	if m == RoundBankers {
		return d.RoundBank(Scale)
	}
	return d.Round(Scale)
}

// ReserveCut returns round(amount * pct / 100, 2).
func (m RoundingMode) ReserveCut(amount decimal.Decimal, pct int) decimal.Decimal {
	if pct <= 0 {
		return decimal.Zero
	}
	if pct > 100 {
		pct = 100
	}
	return m.Round(amount.Mul(decimal.NewFromInt(int64(pct))).Div(hundred))
}

// DailyAmount amortizes a monthly total over days, rounded to Scale places.
func (m RoundingMode) DailyAmount(monthly decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return m.Round(monthly.Div(decimal.NewFromInt(int64(days))))
}

// DaysInMonth returns 28..31 for the UTC month containing t.
func DaysInMonth(t time.Time) int {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseAmount parses a decimal string, accepting a comma as decimal separator.
// Sign is preserved so callers can report ErrInvalidAmount for non-positive input.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,34")  -> 12.34
//	ParseAmount("-5")     -> -5
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// FormatAmount renders d with exactly Scale fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
