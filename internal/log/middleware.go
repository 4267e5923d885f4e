package log

import (
	"context"
	"log/slog"
)

type ContextKey string

// LoggerContextKey holds the request-scoped logger. The trace middleware sets
// it with the request ID; the auth wrapper adds the owner.
const LoggerContextKey ContextKey = "logger"

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext returns the request logger, or the default logger when none
// was attached.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger logs the domain events worth finding later: created
// expenses, limit warnings and failed requests.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) LogExpenseCreated(ctx context.Context, ownerID, expenseID string, amountCents int64, categoryID *string) {
	fields := NewFields().
		WithOwner(ownerID).
		WithExpense(expenseID, amountCents, categoryID).
		WithOperation(OpCreate)

	sl.logger.InfoContext(ctx, "Expense created", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogLimitWarning(ctx context.Context, ownerID, categoryID string, amountCents, exceedanceCents int64) {
	fields := NewFields().
		WithOwner(ownerID).
		WithCategory(categoryID).
		WithOperation(OpCreate)
	fields[FieldAmountCents] = amountCents
	fields[FieldExceedance] = exceedanceCents

	sl.logger.WarnContext(ctx, "Category limit would be exceeded", fields.ToSlice()...)
}

// LogError logs err under the given error type. fields may be nil.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, errorType string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	sl.logger.ErrorContext(ctx, msg, fields.WithError(err).WithErrorType(errorType).ToSlice()...)
}
