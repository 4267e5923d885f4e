package assistant

import (
	"encoding/json"
	"fmt"
	"time"

	"expensa/internal/core"
)

const promptTemplate = `You are a helpful expense analysis assistant. You have access to the user's expense data and can help them understand their spending patterns, provide insights, and answer questions about their expenses. Be concise, clear, and helpful.

Here is the user's expense data:
%s

User's question: %s

Please provide a helpful response focusing on their expense data.`

// expenseContext is the reduced view of an expense the model gets to see.
type expenseContext struct {
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Date        string      `json:"date"`
}

func projectExpenses(expenses []core.Expense) []expenseContext {
	out := make([]expenseContext, 0, len(expenses))
	for _, e := range expenses {
		category := core.UncategorizedName
		if e.Category != nil {
			category = e.Category.Name
		}
		out = append(out, expenseContext{
			Amount:      json.Number(e.Amount.String()),
			Description: e.Description,
			Category:    category,
			Date:        e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// BuildPrompt embeds the expenses as indented JSON followed by the question.
func BuildPrompt(query string, expenses []core.Expense) (string, error) {
	data, err := json.MarshalIndent(projectExpenses(expenses), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode expense context: %w", err)
	}
	return fmt.Sprintf(promptTemplate, data, query), nil
}
