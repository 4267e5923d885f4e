package core

import (
	"math"
	"math/big"
)

// CategoryGroup is one partition of the grouped view.
type CategoryGroup struct {
	Category CategorySnapshot
	Expenses []Expense
	Total    Money
}

// ChartSlice is one entry of the pie-chart series.
type ChartSlice struct {
	Label   string
	Value   Money
	Color   string
	Percent float64 // one decimal, relative to the categorized total
}

// ExpenseRow is an expense as shown in the flat list.
type ExpenseRow struct {
	Expense     Expense
	Category    CategorySnapshot // display category, Uncategorized when absent
	Categorized bool
	Exceedance  Money // display badge for the row's category
}

// TotalsByCategory sums amounts keyed by category ID. Expenses without a
// resolvable category are excluded.
func TotalsByCategory(expenses []Expense) map[string]Money {
	totals := make(map[string]Money)
	for _, e := range expenses {
		if e.Category == nil {
			continue
		}
		totals[e.Category.ID] = totals[e.Category.ID].Add(e.Amount)
	}
	return totals
}

// GrandTotal sums every expense regardless of category.
func GrandTotal(expenses []Expense) Money {
	var total Money
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// CategorizedTotal sums the expenses that carry a resolvable category.
func CategorizedTotal(expenses []Expense) Money {
	var total Money
	for _, e := range expenses {
		if e.Category != nil {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// Exceedance is how far categoryTotal is over limit. A nil limit never exceeds.
func Exceedance(categoryTotal Money, limit *Money) Money {
	if limit == nil {
		return Money{}
	}
	over := categoryTotal.Sub(*limit)
	if over.Cents < 0 {
		return Money{}
	}
	return over
}

// PendingExceedance is the exceedance a candidate amount would cause on top
// of the category's current total.
func PendingExceedance(currentTotal, candidate Money, limit *Money) Money {
	return Exceedance(currentTotal.Add(candidate), limit)
}

// GroupByCategory partitions categorized expenses by category ID. Groups
// appear in first-encounter order and keep the input order of their expenses.
func GroupByCategory(expenses []Expense) []CategoryGroup {
	groups := []CategoryGroup{}
	index := make(map[string]int)
	for _, e := range expenses {
		if e.Category == nil {
			continue
		}
		i, ok := index[e.Category.ID]
		if !ok {
			i = len(groups)
			index[e.Category.ID] = i
			groups = append(groups, CategoryGroup{Category: *e.Category})
		}
		groups[i].Expenses = append(groups[i].Expenses, e)
		groups[i].Total = groups[i].Total.Add(e.Amount)
	}
	return groups
}

// ChartSeries builds one slice per distinct category name in first-encounter
// order. Percentages are relative to the sum of the series values.
func ChartSeries(expenses []Expense) []ChartSlice {
	slices := []ChartSlice{}
	index := make(map[string]int)
	for _, e := range expenses {
		if e.Category == nil {
			continue
		}
		name := e.Category.Name
		i, ok := index[name]
		if !ok {
			i = len(slices)
			index[name] = i
			slices = append(slices, ChartSlice{Label: name})
		}
		slices[i].Value = slices[i].Value.Add(e.Amount)
		slices[i].Color = e.Category.Color
	}

	var total int64
	for _, s := range slices {
		total += s.Value.Cents
	}
	if total == 0 {
		return slices
	}
	for i := range slices {
		slices[i].Percent = percentOneDecimal(slices[i].Value.Cents, total)
	}
	return slices
}

// percentOneDecimal computes part/total*100 rounded half-up to one decimal
// using integer arithmetic.
func percentOneDecimal(part, total int64) float64 {
	if part <= math.MaxInt64/2000 && total <= math.MaxInt64/4 {
		permille := (part*1000*2 + total) / (total * 2)
		return float64(permille) / 10
	}
	n := new(big.Int).Mul(big.NewInt(part), big.NewInt(2000))
	n.Add(n, big.NewInt(total))
	n.Quo(n, new(big.Int).Mul(big.NewInt(total), big.NewInt(2)))
	return float64(n.Int64()) / 10
}

// FlatList decorates every expense with its display category and the
// category's exceedance over the whole input.
func FlatList(expenses []Expense) []ExpenseRow {
	totals := TotalsByCategory(expenses)
	rows := make([]ExpenseRow, 0, len(expenses))
	for _, e := range expenses {
		row := ExpenseRow{Expense: e, Category: Uncategorized()}
		if e.Category != nil {
			row.Category = *e.Category
			row.Categorized = true
			row.Exceedance = Exceedance(totals[e.Category.ID], e.Category.Limit)
		}
		rows = append(rows, row)
	}
	return rows
}

// Uncategorized is the display snapshot used for expenses without a category.
func Uncategorized() CategorySnapshot {
	return CategorySnapshot{Name: UncategorizedName, Icon: DefaultIcon}
}

// CategoryTotal pairs each category with its total and exceedance over expenses.
type CategoryTotal struct {
	Category   Category
	Total      Money
	Exceedance Money
}

// SummarizeCategories returns the categories in their given order annotated
// with totals from expenses.
func SummarizeCategories(categories []Category, expenses []Expense) []CategoryTotal {
	totals := TotalsByCategory(expenses)
	out := make([]CategoryTotal, 0, len(categories))
	for _, c := range categories {
		t := totals[c.ID]
		out = append(out, CategoryTotal{Category: c, Total: t, Exceedance: Exceedance(t, c.Limit)})
	}
	return out
}
