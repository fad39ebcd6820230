// Package stats turns a user's expense records into the numbers the dashboard shows.
//
// Everything here is a pure function over its arguments: no I/O, no clock, no
// shared state. Callers fetch records, pass them in together with "now", and get
// plain values back.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"neovest/internal/core"
)

// DisplayCategories is how many categories the dashboard lists.
const DisplayCategories = 6

// ActivityExpense is the only RecentActivity kind produced today.
const ActivityExpense = "expense"

var hundred = decimal.NewFromInt(100)

type (
	// DashboardStats is recomputed on every refresh and never persisted.
	DashboardStats struct {
		TotalExpenses     decimal.Decimal            `json:"total_expenses"`
		MonthlyExpenses   decimal.Decimal            `json:"monthly_expenses"`
		CategoryBreakdown map[string]decimal.Decimal `json:"category_breakdown"`
		ExpenseCount      int                        `json:"expense_count"`
	}

	RecentActivity struct {
		ID          string          `json:"id"`
		Kind        string          `json:"kind"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Date        time.Time       `json:"date"`
	}

	CategoryShare struct {
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
		Percent  float64         `json:"percent"`
	}
)

// ComputeStats aggregates records against now. The monthly figure counts records
// whose date falls in now's calendar month and year, both read in now's location.
func ComputeStats(records []core.Expense, now time.Time) DashboardStats {
	s := DashboardStats{
		TotalExpenses:     decimal.Zero,
		MonthlyExpenses:   decimal.Zero,
		CategoryBreakdown: make(map[string]decimal.Decimal),
		ExpenseCount:      len(records),
	}
	loc := now.Location()
	year, month, _ := now.Date()

	for _, r := range records {
		s.TotalExpenses = s.TotalExpenses.Add(r.Amount)
		s.CategoryBreakdown[r.Category] = s.CategoryBreakdown[r.Category].Add(r.Amount)

		y, m, _ := r.Date.In(loc).Date()
		if y == year && m == month {
			s.MonthlyExpenses = s.MonthlyExpenses.Add(r.Amount)
		}
	}
	return s
}

// AveragePerTransaction returns zero for an empty set.
func (s DashboardStats) AveragePerTransaction() decimal.Decimal {
	if s.ExpenseCount == 0 {
		return decimal.Zero
	}
	return s.TotalExpenses.Div(decimal.NewFromInt(int64(s.ExpenseCount)))
}

// Recent maps the first limit records to activity entries. Records are expected
// newest first already and are not re-sorted.
func Recent(records []core.Expense, limit int) []RecentActivity {
	if limit <= 0 {
		return []RecentActivity{}
	}
	n := min(limit, len(records))
	out := make([]RecentActivity, 0, n)
	for _, r := range records[:n] {
		out = append(out, RecentActivity{
			ID:          r.ID,
			Kind:        ActivityExpense,
			Description: r.Description,
			Amount:      r.Amount,
			Category:    r.Category,
			Date:        r.Date,
		})
	}
	return out
}

// RankCategories orders the breakdown by amount, largest first, and keeps at most top entries.
// Equal amounts are ordered by category name.
func RankCategories(s DashboardStats, top int) []CategoryShare {
	out := make([]CategoryShare, 0, len(s.CategoryBreakdown))
	for cat, amt := range s.CategoryBreakdown {
		out = append(out, CategoryShare{Category: cat, Amount: amt, Percent: percentOf(amt, s.TotalExpenses)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	if top >= 0 && len(out) > top {
		out = out[:top]
	}
	return out
}

func percentOf(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Div(total).Mul(hundred).InexactFloat64()
}
