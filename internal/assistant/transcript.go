package assistant

import (
	"sync"
	"time"

	"expensa/internal/cache"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Transcripts keeps each session's conversation in memory. It is display
// history only and never sent back to the model.
type Transcripts struct {
	mu          sync.Mutex
	entries     *cache.LRUCache[[]Message]
	maxMessages int
}

func NewTranscripts(maxSessions, maxMessages int, ttl time.Duration) *Transcripts {
	return &Transcripts{
		entries:     cache.NewLRUCache[[]Message](maxSessions, ttl),
		maxMessages: maxMessages,
	}
}

// Cache exposes the backing cache for periodic cleanup.
func (t *Transcripts) Cache() *cache.LRUCache[[]Message] {
	return t.entries
}

// Append adds messages to the session's transcript, dropping the oldest
// beyond the per-session bound.
func (t *Transcripts) Append(token string, msgs ...Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, _ := t.entries.Get(token)
	next := make([]Message, 0, len(current)+len(msgs))
	next = append(next, current...)
	next = append(next, msgs...)
	if over := len(next) - t.maxMessages; t.maxMessages > 0 && over > 0 {
		next = next[over:]
	}
	t.entries.Set(token, next)
}

func (t *Transcripts) Get(token string) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, _ := t.entries.Get(token)
	out := make([]Message, len(current))
	copy(out, current)
	return out
}

func (t *Transcripts) Clear(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries.Delete(token)
}
