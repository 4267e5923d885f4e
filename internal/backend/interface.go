// Package backend picks and opens the store that holds users, sessions,
// categories and expenses.
package backend

import (
	"context"
	"errors"

	"expensa/internal/ports"
)

var (
	ErrUnknownBackend = errors.New("unknown data backend")
	ErrMissingDBPath  = errors.New("sqlite backend needs a database path")
)

// CleanupFunc releases the store's resources.
type CleanupFunc func() error

// BackendResult is an opened, reachable store.
type BackendResult struct {
	Type    BackendType
	Store   ports.Store
	Cleanup CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type         BackendType
	SQLiteDBPath string
}

type BackendType string

const (
	// SQLiteBackend persists to a single file with embedded migrations.
	SQLiteBackend BackendType = "sqlite"
	// MemoryBackend keeps everything in process, for tests and demos.
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	return bt == SQLiteBackend || bt == MemoryBackend
}
