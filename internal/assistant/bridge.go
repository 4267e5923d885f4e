// Package assistant answers free-text questions about a user's expenses by
// forwarding them, together with the expense list, to a hosted model.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensa/internal/core"
	"expensa/internal/log"
)

// FallbackReply is returned when the model produces no text.
const FallbackReply = "I'm sorry, I couldn't generate a response. Please try again."

var (
	ErrEmptyQuery           = errors.New("query is empty")
	ErrAssistantUnavailable = errors.New("assistant unavailable")
)

// Model generates a plain-text completion for a single prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Bridge is stateless: every call sends one prompt and no earlier turns.
type Bridge struct {
	model   Model
	timeout time.Duration
	logger  *log.Logger
}

func NewBridge(model Model, timeout time.Duration, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Nop()
	}
	return &Bridge{
		model:   model,
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentAssistant),
	}
}

// Enabled reports whether a model is configured.
func (b *Bridge) Enabled() bool {
	return b != nil && b.model != nil
}

// Ask sends the question with the expense context and returns the reply.
func (b *Bridge) Ask(ctx context.Context, query string, expenses []core.Expense) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if !b.Enabled() {
		return "", fmt.Errorf("%w: no model configured", ErrAssistantUnavailable)
	}

	prompt, err := BuildPrompt(query, expenses)
	if err != nil {
		return "", err
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := b.model.Generate(ctx, prompt)
	if err != nil {
		b.logger.ErrorContext(ctx, "Model call failed",
			log.FieldOperation, log.OpAsk,
			log.FieldModel, b.model.Name(),
			log.FieldErrorType, log.ErrorTypeNetwork,
			log.FieldError, err)
		return "", fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}

	b.logger.InfoContext(ctx, "Assistant answered",
		log.FieldOperation, log.OpAsk,
		log.FieldModel, b.model.Name(),
		log.FieldCount, len(expenses),
		log.FieldDuration, time.Since(start).Milliseconds())

	if strings.TrimSpace(reply) == "" {
		return FallbackReply, nil
	}
	return reply, nil
}

// Greeting is the opening message of a conversation.
func (b *Bridge) Greeting(n int) string {
	return fmt.Sprintf("Hi! I'm your expense analysis assistant. I can help you analyze your %d expenses. What would you like to know?", n)
}
