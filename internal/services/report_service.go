package services

import (
	"context"
	"time"

	"expensa/internal/auth"
	"expensa/internal/core"
	"expensa/internal/ports"
)

// MonthlyReport is everything the reports screen shows for one month.
type MonthlyReport struct {
	MonthIndex       int
	Year             int
	MonthName        string
	Range            core.TimeRange
	Total            core.Money
	CategorizedTotal core.Money
	Series           []core.ChartSlice
	Groups           []core.CategoryGroup
	Rows             []core.ExpenseRow
	Categories       []core.CategoryTotal
}

type ReportService struct {
	categories ports.CategoryStore
	expenses   *ExpenseService
}

func NewReportService(categories ports.CategoryStore, expenses *ExpenseService) *ReportService {
	return &ReportService{categories: categories, expenses: expenses}
}

// Month builds the report for monthIndex (0 = January) of year in loc.
func (s *ReportService) Month(ctx context.Context, sess auth.Session, monthIndex, year int, loc *time.Location) (MonthlyReport, error) {
	r, err := core.MonthRange(monthIndex, year, loc)
	if err != nil {
		return MonthlyReport{}, err
	}

	categories, expenses, err := loadCategoriesAndExpenses(ctx, s.categories, s.expenses, sess.UserID, &r)
	if err != nil {
		return MonthlyReport{}, err
	}

	return MonthlyReport{
		MonthIndex:       monthIndex,
		Year:             year,
		MonthName:        core.MonthName(monthIndex),
		Range:            r,
		Total:            core.GrandTotal(expenses),
		CategorizedTotal: core.CategorizedTotal(expenses),
		Series:           core.ChartSeries(expenses),
		Groups:           core.GroupByCategory(expenses),
		Rows:             core.FlatList(expenses),
		Categories:       core.SummarizeCategories(categories, expenses),
	}, nil
}
