// Package storetest holds the behavioral tests every ports.Store must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensa/internal/core"
	"expensa/internal/ports"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) ports.Store

// Run executes the shared store behavior tests against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UsersAndSeeding", func(t *testing.T) { testUsersAndSeeding(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("ExpenseLifecycle", func(t *testing.T) { testExpenseLifecycle(t, newStore(t)) })
	t.Run("MonthRange", func(t *testing.T) { testMonthRange(t, newStore(t)) })
	t.Run("CategoryLimit", func(t *testing.T) { testCategoryLimit(t, newStore(t)) })
	t.Run("DeleteCategoryDetaches", func(t *testing.T) { testDeleteCategoryDetaches(t, newStore(t)) })
	t.Run("OwnerScoping", func(t *testing.T) { testOwnerScoping(t, newStore(t)) })
	t.Run("Validation", func(t *testing.T) { testValidation(t, newStore(t)) })
}

func mustUser(t *testing.T, s ports.Store, email string, seed ...core.NewCategory) ports.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), email, "hash", seed)
	require.NoError(t, err)
	return u
}

func mustCategory(t *testing.T, s ports.Store, owner, name string, limit *core.Money) core.Category {
	t.Helper()
	c, err := s.CreateCategory(context.Background(), core.NewCategory{
		OwnerID: owner, Name: name, Icon: "cart", Color: "#112233", Limit: limit,
	})
	require.NoError(t, err)
	return c
}

func mustExpense(t *testing.T, s ports.Store, owner string, cents int64, categoryID *string, at time.Time) core.Expense {
	t.Helper()
	e, err := s.CreateExpense(context.Background(), core.NewExpense{
		OwnerID: owner, Amount: core.Money{Cents: cents}, Description: "item", CategoryID: categoryID, CreatedAt: at,
	})
	require.NoError(t, err)
	return e
}

func testUsersAndSeeding(t *testing.T, s ports.Store) {
	ctx := context.Background()
	seed := []core.NewCategory{
		{Name: "Shopping", Icon: "cart", Color: "#8B5CF6", IsDefault: true},
		{Name: "Food & Dining", Icon: "restaurant", Color: "#F59E0B", IsDefault: true},
	}
	u := mustUser(t, s, "ana@example.com", seed...)
	assert.NotEmpty(t, u.ID)

	_, err := s.CreateUser(ctx, "ana@example.com", "other", nil)
	assert.ErrorIs(t, err, ports.ErrEmailTaken)

	got, err := s.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)

	cats, err := s.ListCategories(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Food & Dining", cats[0].Name, "categories are ordered by name")
	assert.True(t, cats[0].IsDefault)
	assert.Nil(t, cats[0].Limit)
}

func testSessions(t *testing.T, s ports.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "sam@example.com")
	now := time.Now()

	require.NoError(t, s.CreateSession(ctx, ports.Session{Token: "live", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.CreateSession(ctx, ports.Session{Token: "old", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(-time.Minute)}))

	sess, err := s.GetSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
	assert.Equal(t, "sam@example.com", sess.Email)

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSession(ctx, "old")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)

	require.NoError(t, s.DeleteSession(ctx, "live"))
	_, err = s.GetSession(ctx, "live")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
}

func testExpenseLifecycle(t *testing.T, s ports.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "lee@example.com")
	food := mustCategory(t, s, u.ID, "Food", &core.Money{Cents: 50000})

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	first := mustExpense(t, s, u.ID, 1000, &food.ID, base)
	second := mustExpense(t, s, u.ID, 2000, nil, base.Add(time.Hour))

	require.NotNil(t, first.Category, "created expense carries the joined category")
	assert.Equal(t, "Food", first.Category.Name)
	require.NotNil(t, first.Category.Limit)
	assert.Equal(t, int64(50000), first.Category.Limit.Cents)
	assert.NotNil(t, first.Metadata)
	assert.True(t, first.CreatedAt.Equal(base))

	list, err := s.ListExpenses(ctx, u.ID, nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Nil(t, list[0].Category)

	withMeta, err := s.CreateExpense(ctx, core.NewExpense{
		OwnerID: u.ID, Amount: core.Money{Cents: 1}, Description: "tagged",
		Metadata: map[string]any{"source": "mobile"},
	})
	require.NoError(t, err)
	got, err := s.GetExpense(ctx, u.ID, withMeta.ID)
	require.NoError(t, err)
	assert.Equal(t, "mobile", got.Metadata["source"])

	require.NoError(t, s.DeleteExpense(ctx, u.ID, first.ID))
	require.NoError(t, s.DeleteExpense(ctx, u.ID, first.ID), "delete is idempotent")
	_, err = s.GetExpense(ctx, u.ID, first.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testMonthRange(t *testing.T, s ports.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "kim@example.com")

	mustExpense(t, s, u.ID, 100, nil, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC))
	jan1 := mustExpense(t, s, u.ID, 200, nil, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	jan31 := mustExpense(t, s, u.ID, 300, nil, time.Date(2025, 1, 31, 23, 59, 59, 999_000_000, time.UTC))
	mustExpense(t, s, u.ID, 400, nil, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	r, err := core.MonthRange(0, 2025, time.UTC)
	require.NoError(t, err)
	list, err := s.ListExpenses(ctx, u.ID, &r)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, jan31.ID, list[0].ID)
	assert.Equal(t, jan1.ID, list[1].ID)
}

func testCategoryLimit(t *testing.T, s ports.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "max@example.com")
	c := mustCategory(t, s, u.ID, "Bills", nil)

	updated, err := s.UpdateCategoryLimit(ctx, u.ID, c.ID, &core.Money{Cents: 12345})
	require.NoError(t, err)
	require.NotNil(t, updated.Limit)
	assert.Equal(t, int64(12345), updated.Limit.Cents)

	cleared, err := s.UpdateCategoryLimit(ctx, u.ID, c.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.Limit)

	_, err = s.UpdateCategoryLimit(ctx, u.ID, c.ID, &core.Money{Cents: 0})
	assert.ErrorIs(t, err, core.ErrInvalidLimit)

	_, err = s.UpdateCategoryLimit(ctx, u.ID, "missing", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testDeleteCategoryDetaches(t *testing.T, s ports.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "joy@example.com")
	c := mustCategory(t, s, u.ID, "Fun", nil)
	e := mustExpense(t, s, u.ID, 500, &c.ID, time.Time{})

	require.NoError(t, s.DeleteCategory(ctx, u.ID, c.ID))

	got, err := s.GetExpense(ctx, u.ID, e.ID)
	require.NoError(t, err, "expenses survive category deletion")
	assert.Nil(t, got.CategoryID)
	assert.Nil(t, got.Category)

	err = s.DeleteCategory(ctx, u.ID, c.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testOwnerScoping(t *testing.T, s ports.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice@example.com")
	bob := mustUser(t, s, "bob@example.com")

	c := mustCategory(t, s, alice.ID, "Private", nil)
	e := mustExpense(t, s, alice.ID, 700, &c.ID, time.Time{})

	list, err := s.ListExpenses(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetExpense(ctx, bob.ID, e.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.CreateExpense(ctx, core.NewExpense{OwnerID: bob.ID, Amount: core.Money{Cents: 1}, Description: "x", CategoryID: &c.ID})
	assert.ErrorIs(t, err, core.ErrNotFound, "cannot file an expense under someone else's category")

	require.NoError(t, s.DeleteExpense(ctx, bob.ID, e.ID))
	_, err = s.GetExpense(ctx, alice.ID, e.ID)
	assert.NoError(t, err, "foreign delete must not remove the row")

	_, err = s.UpdateCategoryLimit(ctx, bob.ID, c.ID, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.DeleteCategory(ctx, bob.ID, c.ID), core.ErrNotFound)
}

func testValidation(t *testing.T, s ports.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "val@example.com")

	_, err := s.CreateExpense(ctx, core.NewExpense{OwnerID: u.ID, Amount: core.Money{Cents: 0}, Description: "x"})
	assert.True(t, errors.Is(err, core.ErrInvalidAmount))

	_, err = s.CreateExpense(ctx, core.NewExpense{OwnerID: u.ID, Amount: core.Money{Cents: 5}, Description: "  "})
	assert.True(t, errors.Is(err, core.ErrEmptyDescription))

	_, err = s.CreateCategory(ctx, core.NewCategory{OwnerID: u.ID, Name: "", Icon: "x", Color: "#000000"})
	assert.True(t, errors.Is(err, core.ErrEmptyName))

	list, err := s.ListExpenses(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, list, "rejected input leaves no partial effect")
}
