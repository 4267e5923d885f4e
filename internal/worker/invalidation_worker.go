// Package worker holds the background loops that run next to the HTTP server.
package worker

import (
	"context"
	"errors"

	"expensa/internal/amqp"
	"expensa/internal/log"
)

// Invalidator drops locally cached data for one owner.
type Invalidator interface {
	Invalidate(ownerID string) int
}

// InvalidationWorker applies invalidations broadcast by other instances.
type InvalidationWorker struct {
	target Invalidator
	logger *log.Logger
}

func NewInvalidationWorker(target Invalidator, logger *log.Logger) *InvalidationWorker {
	if logger == nil {
		logger = log.Nop()
	}
	return &InvalidationWorker{
		target: target,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleInvalidation processes a single message from the bus
func (w *InvalidationWorker) HandleInvalidation(ctx context.Context, msg *amqp.InvalidationMessage) error {
	if msg == nil || msg.OwnerID == "" {
		return errors.New("invalidation without owner")
	}

	n := w.target.Invalidate(msg.OwnerID)
	w.logger.DebugContext(ctx, "Applied remote invalidation",
		log.FieldOperation, log.OpInvalidate,
		log.FieldOwnerID, msg.OwnerID,
		log.FieldCount, n,
		"reason", msg.Reason,
		"origin", msg.Origin)
	return nil
}

// Consumer is the subscribing side of the invalidation bus.
type Consumer interface {
	ConsumeInvalidations(ctx context.Context, handler func(context.Context, *amqp.InvalidationMessage) error) error
}

// Run consumes until ctx is cancelled. Cancellation is a clean exit.
func (w *InvalidationWorker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.Info("Invalidation worker started")
	err := consumer.ConsumeInvalidations(ctx, w.HandleInvalidation)
	if errors.Is(err, context.Canceled) {
		w.logger.Info("Invalidation worker stopped")
		return nil
	}
	return err
}
