// Package ledger derives dashboard figures from snapshots of a company's
// transactions and entities.
//
// Every function here is pure: inputs are never mutated, nothing is cached
// and results depend only on the values passed in. Callers are expected to
// have filtered the inputs to a single company.
package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"omnifin/internal/core"
)

// ComputeDashboardMetrics reduces transactions and entities to the dashboard
// metrics. Only completed transactions count towards revenue and expenses;
// pending ones are counted separately and cancelled ones are ignored.
// Negative amounts are not rejected and propagate arithmetically.
func ComputeDashboardMetrics(transactions []core.Transaction, entities []core.Entity) core.DashboardMetrics {
	m := core.DashboardMetrics{
		TotalRevenue:  decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
	for _, t := range transactions {
		if t.Status == core.StatusPending {
			m.PendingTransactions++
		}
		if t.Status != core.StatusCompleted {
			continue
		}
		switch t.Type {
		case core.Income:
			m.TotalRevenue = m.TotalRevenue.Add(t.Amount)
		case core.Expense:
			m.TotalExpenses = m.TotalExpenses.Add(t.Amount)
		}
	}
	m.CashFlow = m.TotalRevenue.Sub(m.TotalExpenses)

	for _, e := range entities {
		switch e.Type {
		case core.EntityCustomer:
			m.CustomerCount++
		case core.EntitySupplier:
			m.SupplierCount++
		}
	}
	return m
}

// ComputeRunningBalance orders transactions by date and returns the
// cumulative signed balance after each one. Equal dates keep their input
// order. Amounts are signed by type (income positive, expense negative) and
// every status is included; filter upstream to restrict it.
func ComputeRunningBalance(transactions []core.Transaction) []core.RunningBalanceEntry {
	if len(transactions) == 0 {
		return []core.RunningBalanceEntry{}
	}
	sorted := make([]core.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date.Time)
	})

	out := make([]core.RunningBalanceEntry, 0, len(sorted))
	balance := decimal.Zero
	for _, t := range sorted {
		balance = balance.Add(t.SignedAmount())
		out = append(out, core.RunningBalanceEntry{
			TransactionID: t.ID,
			Date:          t.Date,
			Balance:       balance,
		})
	}
	return out
}

// SumTransactions returns the signed sum of all amounts.
func SumTransactions(transactions []core.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range transactions {
		sum = sum.Add(t.SignedAmount())
	}
	return sum
}

// BuildInsight picks the assistant message for the given metrics. Pending
// transactions take precedence over the cash flow verdict.
func BuildInsight(m core.DashboardMetrics, currency string) core.Insight {
	switch {
	case m.PendingTransactions > 0:
		return core.Insight{
			Message: fmt.Sprintf("You have %d pending transaction(s) to review.", m.PendingTransactions),
			Mood:    core.MoodThinking,
		}
	case m.CashFlow.IsNegative():
		return core.Insight{
			Message: "Alert: Your cash flow is negative by " + FormatAmount(m.CashFlow.Abs(), currency),
			Mood:    core.MoodThinking,
		}
	default:
		return core.Insight{
			Message: "Looking good! Your cash flow is " + FormatAmount(m.CashFlow, currency),
			Mood:    core.MoodHappy,
		}
	}
}

// FormatAmount formats v in currency, falling back to "1.50 XYZ" for codes
// the currency table does not know.
func FormatAmount(v decimal.Decimal, currency string) string {
	s, err := core.FormatCurrency(v, currency)
	if err != nil {
		return v.StringFixed(2) + " " + currency
	}
	return s
}
