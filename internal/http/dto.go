package http

import (
	"time"

	"expensa/internal/core"
	"expensa/internal/services"
)

// moneyDTO renders an amount both as a two-decimal string and as cents.
type moneyDTO struct {
	Value string `json:"value"`
	Cents int64  `json:"cents"`
}

func toMoney(m core.Money) moneyDTO {
	return moneyDTO{Value: m.String(), Cents: m.Cents}
}

func toOptionalMoney(m *core.Money) *moneyDTO {
	if m == nil {
		return nil
	}
	dto := toMoney(*m)
	return &dto
}

type categoryDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	IsDefault bool      `json:"is_default"`
	Limit     *moneyDTO `json:"limit"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toCategory(c core.Category) categoryDTO {
	return categoryDTO{
		ID:        c.ID,
		Name:      c.Name,
		Icon:      c.Icon,
		Color:     c.Color,
		IsDefault: c.IsDefault,
		Limit:     toOptionalMoney(c.Limit),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type categoryTotalDTO struct {
	categoryDTO
	Total      moneyDTO `json:"total"`
	Exceedance moneyDTO `json:"exceedance"`
}

func toCategoryTotals(in []core.CategoryTotal) []categoryTotalDTO {
	out := make([]categoryTotalDTO, 0, len(in))
	for _, ct := range in {
		out = append(out, categoryTotalDTO{
			categoryDTO: toCategory(ct.Category),
			Total:       toMoney(ct.Total),
			Exceedance:  toMoney(ct.Exceedance),
		})
	}
	return out
}

type snapshotDTO struct {
	ID    string    `json:"id,omitempty"`
	Name  string    `json:"name"`
	Icon  string    `json:"icon"`
	Color string    `json:"color,omitempty"`
	Limit *moneyDTO `json:"limit"`
}

func toSnapshot(c core.CategorySnapshot) snapshotDTO {
	return snapshotDTO{ID: c.ID, Name: c.Name, Icon: c.Icon, Color: c.Color, Limit: toOptionalMoney(c.Limit)}
}

type expenseDTO struct {
	ID          string         `json:"id"`
	Amount      moneyDTO       `json:"amount"`
	Description string         `json:"description"`
	CategoryID  *string        `json:"category_id"`
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Category    *snapshotDTO   `json:"category"`
}

func toExpense(e core.Expense) expenseDTO {
	dto := expenseDTO{
		ID:          e.ID,
		Amount:      toMoney(e.Amount),
		Description: e.Description,
		CategoryID:  e.CategoryID,
		CreatedAt:   e.CreatedAt,
		Metadata:    e.Metadata,
	}
	if e.Category != nil {
		snap := toSnapshot(*e.Category)
		dto.Category = &snap
	}
	return dto
}

func toExpenses(in []core.Expense) []expenseDTO {
	out := make([]expenseDTO, 0, len(in))
	for _, e := range in {
		out = append(out, toExpense(e))
	}
	return out
}

// rowDTO is a flat-list row: the expense plus its display category and
// the exceedance badge for that category.
type rowDTO struct {
	expenseDTO
	DisplayCategory snapshotDTO `json:"display_category"`
	Categorized     bool        `json:"categorized"`
	Exceedance      moneyDTO    `json:"exceedance"`
}

func toRows(in []core.ExpenseRow) []rowDTO {
	out := make([]rowDTO, 0, len(in))
	for _, r := range in {
		out = append(out, rowDTO{
			expenseDTO:      toExpense(r.Expense),
			DisplayCategory: toSnapshot(r.Category),
			Categorized:     r.Categorized,
			Exceedance:      toMoney(r.Exceedance),
		})
	}
	return out
}

type groupDTO struct {
	Category snapshotDTO  `json:"category"`
	Expenses []expenseDTO `json:"expenses"`
	Total    moneyDTO     `json:"total"`
}

func toGroups(in []core.CategoryGroup) []groupDTO {
	out := make([]groupDTO, 0, len(in))
	for _, g := range in {
		out = append(out, groupDTO{
			Category: toSnapshot(g.Category),
			Expenses: toExpenses(g.Expenses),
			Total:    toMoney(g.Total),
		})
	}
	return out
}

type sliceDTO struct {
	Label   string   `json:"label"`
	Value   moneyDTO `json:"value"`
	Color   string   `json:"color"`
	Percent float64  `json:"percent"`
}

func toSeries(in []core.ChartSlice) []sliceDTO {
	out := make([]sliceDTO, 0, len(in))
	for _, s := range in {
		out = append(out, sliceDTO{Label: s.Label, Value: toMoney(s.Value), Color: s.Color, Percent: s.Percent})
	}
	return out
}

type rangeDTO struct {
	Month int       `json:"month"`
	Year  int       `json:"year"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type expenseListDTO struct {
	Range    *rangeDTO `json:"range,omitempty"`
	Expenses []rowDTO  `json:"expenses"`
	Total    moneyDTO  `json:"total"`
	Count    int       `json:"count"`
}

type groupedListDTO struct {
	Range            *rangeDTO  `json:"range,omitempty"`
	Groups           []groupDTO `json:"groups"`
	CategorizedTotal moneyDTO   `json:"categorized_total"`
}

type warningDTO struct {
	Category     snapshotDTO `json:"category"`
	CurrentTotal moneyDTO    `json:"current_total"`
	Candidate    moneyDTO    `json:"candidate"`
	Limit        moneyDTO    `json:"limit"`
	Exceedance   moneyDTO    `json:"exceedance"`
}

func toWarning(w services.LimitWarning) warningDTO {
	return warningDTO{
		Category:     toSnapshot(w.Category),
		CurrentTotal: toMoney(w.CurrentTotal),
		Candidate:    toMoney(w.Candidate),
		Limit:        toMoney(w.Limit),
		Exceedance:   toMoney(w.Exceedance),
	}
}

type previewDTO struct {
	Exceeds bool        `json:"exceeds"`
	Warning *warningDTO `json:"warning"`
}

type reportDTO struct {
	Range            rangeDTO           `json:"range"`
	MonthName        string             `json:"month_name"`
	Total            moneyDTO           `json:"total"`
	CategorizedTotal moneyDTO           `json:"categorized_total"`
	Series           []sliceDTO         `json:"series"`
	Groups           []groupDTO         `json:"groups"`
	Rows             []rowDTO           `json:"rows"`
	Categories       []categoryTotalDTO `json:"categories"`
}

func toReport(r services.MonthlyReport) reportDTO {
	return reportDTO{
		Range:            rangeDTO{Month: r.MonthIndex, Year: r.Year, Start: r.Range.Start, End: r.Range.End},
		MonthName:        r.MonthName,
		Total:            toMoney(r.Total),
		CategorizedTotal: toMoney(r.CategorizedTotal),
		Series:           toSeries(r.Series),
		Groups:           toGroups(r.Groups),
		Rows:             toRows(r.Rows),
		Categories:       toCategoryTotals(r.Categories),
	}
}
