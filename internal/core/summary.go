package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category   string
	Amount     decimal.Decimal
	Percentage decimal.Decimal // share of the period total, 1 decimal place
}

// LedgerTotals sums a list of transactions by direction.
type LedgerTotals struct {
	Count    int
	Income   decimal.Decimal
	Expenses decimal.Decimal
}

// Net returns Income - Expenses.
func (t LedgerTotals) Net() decimal.Decimal {
	return t.Income.Sub(t.Expenses)
}

// Totals aggregates txs into LedgerTotals.
func Totals(txs []Transaction) LedgerTotals {
	out := LedgerTotals{Income: decimal.Zero, Expenses: decimal.Zero}
	for _, tx := range txs {
		out.Count++
		switch tx.Type {
		case Income:
			out.Income = out.Income.Add(tx.Amount)
		case Expense:
			out.Expenses = out.Expenses.Add(tx.Amount)
		}
	}
	return out
}
