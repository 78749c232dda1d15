package generate

import (
	"sync"
	"time"
)

// Conversation is an append-only chat history, safe for concurrent use.
type Conversation struct {
	mu       sync.Mutex
	id       string
	messages []Message
	updated  time.Time
}

func NewConversation(id string) *Conversation {
	return &Conversation{id: id, updated: time.Now()}
}

func (c *Conversation) ID() string { return c.id }

func (c *Conversation) Append(role Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: role, Content: content})
	c.updated = time.Now()
}

// Messages returns a copy of the history in order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// UpdatedAt is the time of the last append, or creation.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updated
}
