package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Invalidation reasons
const (
	ReasonExpenseCreated  = "expense_created"
	ReasonExpenseDeleted  = "expense_deleted"
	ReasonCategoryChanged = "category_changed"
)

// InvalidationMessage tells every instance to drop its cached view of one
// owner's data. It carries no payload; readers re-fetch from the store.
type InvalidationMessage struct {
	OwnerID   string    `json:"owner_id"`
	Reason    string    `json:"reason"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInvalidationMessage creates a message stamped with the current time
func NewInvalidationMessage(ownerID, reason, origin string) *InvalidationMessage {
	return &InvalidationMessage{
		OwnerID:   ownerID,
		Reason:    reason,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *InvalidationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InvalidationMessageFromJSON decodes and validates a message
func InvalidationMessageFromJSON(data []byte) (*InvalidationMessage, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OwnerID == "" {
		return nil, errors.New("invalidation message without owner_id")
	}
	return &msg, nil
}
