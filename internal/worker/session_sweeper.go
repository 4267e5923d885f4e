package worker

import (
	"context"
	"time"

	"expensa/internal/log"
)

// SessionPurger deletes expired sessions and reports how many were removed.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionSweeper periodically removes expired sessions from the store.
type SessionSweeper struct {
	purger   SessionPurger
	interval time.Duration
	logger   *log.Logger
}

func NewSessionSweeper(purger SessionPurger, interval time.Duration, logger *log.Logger) *SessionSweeper {
	if logger == nil {
		logger = log.Nop()
	}
	return &SessionSweeper{
		purger:   purger,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Sweep runs one purge. Failures are logged; the next tick retries.
func (s *SessionSweeper) Sweep(ctx context.Context) int64 {
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to purge expired sessions", log.FieldError, err)
		return 0
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "Purged expired sessions", log.FieldCount, n)
	}
	return n
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *SessionSweeper) Run(ctx context.Context) error {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
