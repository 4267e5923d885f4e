package backend

import (
	"context"
	"errors"
	"fmt"

	"expensa/internal/log"
	"expensa/internal/ports"
	"expensa/internal/storage"
	"expensa/internal/storage/memory"
)

type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the configured store and pings it once. A store that
// opens but cannot be reached is closed again before the error is returned.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store ports.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite store: %w", err)
		}
	case MemoryBackend:
		store = memory.New()
		f.logger.Warn("Using memory backend, data will not survive a restart")
	}

	if err := store.Ping(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping %s store: %w", config.Type, err), store.Close())
	}

	f.logger.Info("Store ready",
		log.FieldOperation, log.OpStartup,
		"backend", config.Type.String(),
		"db_path", config.SQLiteDBPath)

	return &BackendResult{
		Type:    config.Type,
		Store:   store,
		Cleanup: store.Close,
	}, nil
}
