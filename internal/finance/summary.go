package finance

import (
	"sort"
	"time"

	"finance-tracker/internal/models"

	"github.com/shopspring/decimal"
)

const (
	UncategorizedName  = "Uncategorized"
	UncategorizedColor = "#8B9FC5"
)

var hundred = decimal.NewFromInt(100)

// Period selects transactions by calendar date. Zero Month or Day match any
// month or day; a zero Year matches any year.
type Period struct {
	Year  int
	Month int
	Day   int
}

// DayOf returns the single-day period containing t.
func DayOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	if p.Year != 0 && t.Year() != p.Year {
		return false
	}
	if p.Month != 0 && int(t.Month()) != p.Month {
		return false
	}
	if p.Day != 0 && t.Day() != p.Day {
		return false
	}
	return true
}

// Slice is one category's share of a type's total.
type Slice struct {
	CategoryID int64 // zero for uncategorized
	Category   string
	Color      string
	Total      decimal.Decimal
	Count      int
	Percentage decimal.Decimal
}

// Summary aggregates the transactions of a period by type and category.
// Totals are absolute values; Balance is income minus expenses.
type Summary struct {
	Period       Period
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	Balance      decimal.Decimal
	Income       []Slice
	Expense      []Slice
	Count        int
}

// Summarize builds the Summary of transactions inside p.
func Summarize(transactions []models.Transaction, p Period) Summary {
	sum := Summary{Period: p}
	income := map[int64]*Slice{}
	expense := map[int64]*Slice{}

	for _, t := range transactions {
		if !p.Contains(t.Date) {
			continue
		}
		sum.Count++
		amount := decimal.NewFromFloat(t.Amount).Abs()

		groups := income
		if t.Type == models.Expense {
			groups = expense
			sum.TotalExpense = sum.TotalExpense.Add(amount)
		} else {
			sum.TotalIncome = sum.TotalIncome.Add(amount)
		}

		key, name, color := int64(0), UncategorizedName, UncategorizedColor
		if t.Category != nil {
			key, name, color = t.Category.ID, t.Category.Name, t.Category.Color
		}
		g, ok := groups[key]
		if !ok {
			g = &Slice{CategoryID: key, Category: name, Color: color}
			groups[key] = g
		}
		g.Total = g.Total.Add(amount)
		g.Count++
	}

	sum.Balance = sum.TotalIncome.Sub(sum.TotalExpense)
	sum.Income = sortedSlices(income, sum.TotalIncome)
	sum.Expense = sortedSlices(expense, sum.TotalExpense)
	return sum
}

func sortedSlices(groups map[int64]*Slice, total decimal.Decimal) []Slice {
	out := make([]Slice, 0, len(groups))
	for _, g := range groups {
		if total.IsPositive() {
			g.Percentage = g.Total.Div(total).Mul(hundred).Round(2)
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Summary summarizes the loaded transactions inside p.
func (s *Service) Summary(p Period) Summary {
	return Summarize(s.transactionList, p)
}

// Recent returns up to n of the newest loaded transactions inside p. It
// returns nothing when n is not positive.
func (s *Service) Recent(p Period, n int) []models.Transaction {
	var out []models.Transaction
	if n <= 0 {
		return out
	}
	for _, t := range s.transactionList {
		if len(out) == n {
			break
		}
		if p.Contains(t.Date) {
			out = append(out, t)
		}
	}
	return out
}
