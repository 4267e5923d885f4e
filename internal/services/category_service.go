package services

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"expensa/internal/amqp"
	"expensa/internal/auth"
	"expensa/internal/core"
	"expensa/internal/log"
	"expensa/internal/ports"
)

type CreateCategoryInput struct {
	Name  string
	Icon  string
	Color string // random when empty
	Limit *core.Money
}

type CategoryService struct {
	categories ports.CategoryStore
	expenses   *ExpenseService
	logger     *log.Logger
	color      func() string
}

func NewCategoryService(categories ports.CategoryStore, expenses *ExpenseService, logger *log.Logger) *CategoryService {
	if logger == nil {
		logger = log.Nop()
	}
	return &CategoryService{
		categories: categories,
		expenses:   expenses,
		logger:     logger.WithComponent(log.ComponentCategory),
		color:      randomColor,
	}
}

// List returns the owner's categories ordered by name, each with its total
// and exceedance over the expenses in r.
func (s *CategoryService) List(ctx context.Context, sess auth.Session, r *core.TimeRange) ([]core.CategoryTotal, error) {
	categories, expenses, err := loadCategoriesAndExpenses(ctx, s.categories, s.expenses, sess.UserID, r)
	if err != nil {
		return nil, err
	}
	return core.SummarizeCategories(categories, expenses), nil
}

func (s *CategoryService) Create(ctx context.Context, sess auth.Session, in CreateCategoryInput) (core.Category, error) {
	nc := core.NewCategory{
		OwnerID: sess.UserID,
		Name:    in.Name,
		Icon:    in.Icon,
		Color:   in.Color,
		Limit:   in.Limit,
	}.Normalize()
	if nc.Color == "" {
		nc.Color = s.color()
	}
	if err := nc.Validate(); err != nil {
		return core.Category{}, err
	}

	created, err := s.categories.CreateCategory(ctx, nc)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.logger.InfoContext(ctx, "Category created",
		log.FieldOperation, log.OpCreate,
		log.FieldOwnerID, sess.UserID,
		log.FieldCategoryID, created.ID)
	return created, nil
}

// UpdateLimit sets the monthly limit, or clears it when limit is nil.
func (s *CategoryService) UpdateLimit(ctx context.Context, sess auth.Session, id string, limit *core.Money) (core.Category, error) {
	if err := core.ValidateLimit(limit); err != nil {
		return core.Category{}, err
	}
	updated, err := s.categories.UpdateCategoryLimit(ctx, sess.UserID, id, limit)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category limit: %w", err)
	}
	// Cached expenses carry a snapshot of the old limit.
	s.expenses.invalidate(ctx, sess.UserID, amqp.ReasonCategoryChanged)
	return updated, nil
}

// Delete removes the category; its expenses stay and become uncategorized.
func (s *CategoryService) Delete(ctx context.Context, sess auth.Session, id string) error {
	if err := s.categories.DeleteCategory(ctx, sess.UserID, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.logger.InfoContext(ctx, "Category deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldOwnerID, sess.UserID,
		log.FieldCategoryID, id)
	s.expenses.invalidate(ctx, sess.UserID, amqp.ReasonCategoryChanged)
	return nil
}

func randomColor() string {
	return fmt.Sprintf("#%06X", rand.IntN(0x1000000))
}

// loadCategoriesAndExpenses fetches both lists concurrently.
func loadCategoriesAndExpenses(ctx context.Context, categories ports.CategoryStore, expenses *ExpenseService, ownerID string, r *core.TimeRange) ([]core.Category, []core.Expense, error) {
	var (
		cats []core.Category
		exps []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cats, err = categories.ListCategories(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		exps, err = expenses.list(gctx, ownerID, r)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return cats, exps, nil
}
