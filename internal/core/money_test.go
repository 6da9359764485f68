package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRoundingModes(t *testing.T) {
	cases := []struct {
		in   string
		mode RoundingMode
		want string
	}{
		{"0.125", RoundHalfAwayFromZero, "0.13"},
		{"-0.125", RoundHalfAwayFromZero, "-0.13"},
		{"0.124", RoundHalfAwayFromZero, "0.12"},
		{"0.125", RoundBankers, "0.12"},
		{"0.135", RoundBankers, "0.14"},
		{"12", RoundBankers, "12.00"},
		{"0.125", RoundingMode("unknown"), "0.13"},
	}
	for _, tc := range cases {
		got := tc.mode.Round(decimal.RequireFromString(tc.in))
		if FormatAmount(got) != tc.want {
			t.Fatalf("%s round(%s) = %s, want %s", tc.mode, tc.in, FormatAmount(got), tc.want)
		}
	}
}

func TestReserveCut(t *testing.T) {
	cases := []struct {
		amount string
		pct    int
		want   string
	}{
		{"1000", 10, "100.00"},
		{"33.33", 15, "5.00"}, // 4.9995
		{"1.25", 10, "0.13"},  // 0.125
		{"100", 0, "0.00"},
		{"100", 150, "100.00"},
	}
	for _, tc := range cases {
		got := RoundHalfAwayFromZero.ReserveCut(decimal.RequireFromString(tc.amount), tc.pct)
		if FormatAmount(got) != tc.want {
			t.Fatalf("ReserveCut(%s, %d) = %s, want %s", tc.amount, tc.pct, FormatAmount(got), tc.want)
		}
	}
}

func TestDailyAmount(t *testing.T) {
	got := RoundHalfAwayFromZero.DailyAmount(decimal.NewFromInt(360), 30)
	if FormatAmount(got) != "12.00" {
		t.Fatalf("expected 12.00, got %s", FormatAmount(got))
	}
	got = RoundHalfAwayFromZero.DailyAmount(decimal.NewFromInt(100), 31)
	if FormatAmount(got) != "3.23" {
		t.Fatalf("expected 3.23, got %s", FormatAmount(got))
	}
	if !RoundHalfAwayFromZero.DailyAmount(decimal.NewFromInt(100), 0).IsZero() {
		t.Fatalf("expected zero for zero days")
	}
}

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		at   time.Time
		want int
	}{
		{time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), 29},
		{time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), 28},
		{time.Date(2025, 4, 30, 23, 0, 0, 0, time.UTC), 30},
		{time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), 31},
	}
	for _, tc := range cases {
		if got := DaysInMonth(tc.at); got != tc.want {
			t.Fatalf("DaysInMonth(%s) = %d, want %d", tc.at.Format("2006-01"), got, tc.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{" 2.50 ", "2.50", true},
		{"-5", "-5.00", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || FormatAmount(got) != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, FormatAmount(got), err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}
