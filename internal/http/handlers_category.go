package http

import (
	"fmt"
	"net/http"

	"expensa/internal/auth"
	"expensa/internal/services"
)

type createCategoryRequest struct {
	Name  string     `json:"name"`
	Icon  string     `json:"icon"`
	Color string     `json:"color"`
	Limit limitField `json:"limit"`
}

type updateLimitRequest struct {
	Limit limitField `json:"limit"`
}

// handleListCategories returns categories ordered by name with their totals
// for the requested month, the current one by default.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	params, err := ParseMonthParams(r.URL.Query(), s.location, s.now(), true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rng, err := params.Range()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	totals, err := s.categories.List(r.Context(), sess, rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	NewJSONResponse().Body(map[string]any{
		"range":      toRange(params, rng),
		"categories": toCategoryTotals(totals),
	}).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := req.Limit.Limit()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.categories.Create(r.Context(), sess, services.CreateCategoryInput{
		Name:  sanitizeInput(req.Name),
		Icon:  sanitizeInput(req.Icon),
		Color: sanitizeInput(req.Color),
		Limit: limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/categories/"+created.ID).
		Body(toCategory(created)).
		Write(w)
}

// handleUpdateCategoryLimit sets the monthly limit. null or "" clears it;
// the key itself is required.
func (s *Server) handleUpdateCategoryLimit(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req updateLimitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Limit.Set {
		s.writeError(w, r, fmt.Errorf("%w: limit is required", errMalformedBody))
		return
	}
	limit, err := req.Limit.Limit()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.categories.UpdateLimit(r.Context(), sess, r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toCategory(updated)).Write(w)
}

// handleDeleteCategory removes the category. Its expenses are kept and
// become uncategorized.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.categories.Delete(r.Context(), sess, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

