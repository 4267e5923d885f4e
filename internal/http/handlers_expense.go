package http

import (
	"net/http"
	"strings"

	"expensa/internal/auth"
	"expensa/internal/core"
	"expensa/internal/services"
)

type createExpenseRequest struct {
	Amount        amountField    `json:"amount"`
	Description   string         `json:"description"`
	CategoryID    string         `json:"category_id"`
	Metadata      map[string]any `json:"metadata"`
	ConfirmExceed bool           `json:"confirm_exceed"`
	RequestID     string         `json:"request_id"`
}

type previewExpenseRequest struct {
	Amount     amountField `json:"amount"`
	CategoryID string      `json:"category_id"`
}

// listParams parses the optional month filter of the list endpoints.
func (s *Server) listParams(r *http.Request) (MonthParams, *core.TimeRange, error) {
	params, err := ParseMonthParams(r.URL.Query(), s.location, s.now(), false)
	if err != nil {
		return MonthParams{}, nil, err
	}
	rng, err := params.Range()
	if err != nil {
		return MonthParams{}, nil, err
	}
	return params, rng, nil
}

func toRange(params MonthParams, rng *core.TimeRange) *rangeDTO {
	if rng == nil {
		return nil
	}
	return &rangeDTO{Month: params.Month, Year: params.Year, Start: rng.Start, End: rng.End}
}

// handleListExpenses returns the flat list, newest first. Without month
// every expense is returned.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	params, rng, err := s.listParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	expenses, err := s.expenses.List(r.Context(), sess, rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	NewJSONResponse().Body(expenseListDTO{
		Range:    toRange(params, rng),
		Expenses: toRows(core.FlatList(expenses)),
		Total:    toMoney(core.GrandTotal(expenses)),
		Count:    len(expenses),
	}).Write(w)
}

func (s *Server) handleGroupedExpenses(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	params, rng, err := s.listParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	expenses, err := s.expenses.List(r.Context(), sess, rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	NewJSONResponse().Body(groupedListDTO{
		Range:            toRange(params, rng),
		Groups:           toGroups(core.GroupByCategory(expenses)),
		CategorizedTotal: toMoney(core.CategorizedTotal(expenses)),
	}).Write(w)
}

// handleCreateExpense validates, checks the monthly limit and stores the
// expense. An unconfirmed limit breach answers 409 with the warning.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	loc, err := ParseLocation(r.URL.Query(), s.location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.Amount.Money()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	created, err := s.expenses.Add(r.Context(), sess, services.AddExpenseInput{
		Amount:        amount,
		Description:   sanitizeInput(req.Description),
		CategoryID:    strings.TrimSpace(req.CategoryID),
		Metadata:      req.Metadata,
		ConfirmExceed: req.ConfirmExceed,
		RequestID:     requestID,
	}, loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+created.ID).
		Body(toExpense(created)).
		Write(w)
}

// handlePreviewExpense reports whether an amount would exceed the
// category's monthly limit. Nothing is written.
func (s *Server) handlePreviewExpense(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req previewExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	loc, err := ParseLocation(r.URL.Query(), s.location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.Amount.Money()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	warning, err := s.expenses.Preview(r.Context(), sess, amount, strings.TrimSpace(req.CategoryID), loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := previewDTO{}
	if warning != nil {
		dto := toWarning(*warning)
		resp.Exceeds = true
		resp.Warning = &dto
	}
	NewJSONResponse().Body(resp).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.expenses.Delete(r.Context(), sess, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
