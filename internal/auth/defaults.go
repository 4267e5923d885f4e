package auth

import "expensa/internal/core"

// DefaultCategories is the set every new account starts with.
func DefaultCategories() []core.NewCategory {
	return []core.NewCategory{
		{Name: "Food & Dining", Icon: "restaurant", Color: "#F59E0B", IsDefault: true},
		{Name: "Transportation", Icon: "car", Color: "#3B82F6", IsDefault: true},
		{Name: "Shopping", Icon: "cart", Color: "#8B5CF6", IsDefault: true},
		{Name: "Entertainment", Icon: "game-controller", Color: "#EC4899", IsDefault: true},
		{Name: "Bills & Utilities", Icon: "receipt", Color: "#10B981", IsDefault: true},
		{Name: "Healthcare", Icon: "medkit", Color: "#EF4444", IsDefault: true},
	}
}
