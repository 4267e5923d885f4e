// Package ports declares the outbound contracts the services depend on.
// Every operation is scoped to the owning user; rows owned by someone else
// behave as if they did not exist.
package ports

import (
	"context"
	"errors"
	"time"

	"expensa/internal/core"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrSessionNotFound = errors.New("session not found")
)

type (
	User struct {
		ID           string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	Session struct {
		Token     string
		UserID    string
		Email     string
		CreatedAt time.Time
		ExpiresAt time.Time
	}
)

type (
	ExpenseStore interface {
		// ListExpenses returns expenses newest first with their category
		// joined. A nil range returns everything.
		ListExpenses(ctx context.Context, ownerID string, r *core.TimeRange) ([]core.Expense, error)
		CreateExpense(ctx context.Context, e core.NewExpense) (core.Expense, error)
		GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error)
		// DeleteExpense is idempotent: deleting a missing expense succeeds.
		DeleteExpense(ctx context.Context, ownerID, id string) error
	}

	CategoryStore interface {
		// ListCategories returns the owner's categories ordered by name.
		ListCategories(ctx context.Context, ownerID string) ([]core.Category, error)
		GetCategory(ctx context.Context, ownerID, id string) (core.Category, error)
		CreateCategory(ctx context.Context, c core.NewCategory) (core.Category, error)
		// UpdateCategoryLimit sets or clears (nil) the limit.
		UpdateCategoryLimit(ctx context.Context, ownerID, id string, limit *core.Money) (core.Category, error)
		// DeleteCategory removes the category and detaches its expenses.
		DeleteCategory(ctx context.Context, ownerID, id string) error
	}

	UserStore interface {
		// CreateUser inserts the user and its seed categories atomically.
		CreateUser(ctx context.Context, email, passwordHash string, seed []core.NewCategory) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		CreateSession(ctx context.Context, s Session) error
		GetSession(ctx context.Context, token string) (Session, error)
		DeleteSession(ctx context.Context, token string) error
		DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	}

	// Store is the full persistence surface of a backend.
	Store interface {
		ExpenseStore
		CategoryStore
		UserStore
		Ping(ctx context.Context) error
		Close() error
	}
)
