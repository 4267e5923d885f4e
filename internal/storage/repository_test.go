package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensa/internal/core"
	"expensa/internal/ports"
	"expensa/internal/storage/storetest"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "expensa.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.Store {
		return newTestRepo(t)
	})
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	v1, err := RunMigrations(path)
	require.NoError(t, err)
	v2, err := RunMigrations(path)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, uint(1), v1)
}

func TestSQLiteRepository_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	repo, err := NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	u, err := repo.CreateUser(ctx, "keep@example.com", "hash", nil)
	require.NoError(t, err)
	_, err = repo.CreateExpense(ctx, core.NewExpense{OwnerID: u.ID, Amount: core.Money{Cents: 42}, Description: "kept"})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	defer repo.Close()
	list, err := repo.ListExpenses(ctx, u.ID, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "kept", list[0].Description)
}

func TestDecodeMetadata(t *testing.T) {
	assert.Empty(t, decodeMetadata(""))
	assert.Empty(t, decodeMetadata("not json"))
	assert.Empty(t, decodeMetadata("null"))
	assert.Equal(t, "x", decodeMetadata(`{"a":"x"}`)["a"])
}
