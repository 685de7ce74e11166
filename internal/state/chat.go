package state

import (
	"sync"

	"github.com/quietpage/quietpage/internal/domain"
)

// Chat holds the message list for one active conversation. Messages are
// append-only; order of appends is conversation order.
type Chat struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage

	notifier notifier
}

func NewChat() *Chat {
	return &Chat{}
}

func (s *Chat) Subscribe(fn func()) func() {
	return s.notifier.subscribe(fn)
}

// Messages returns a copy of the current message list.
func (s *Chat) Messages() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages without copying.
func (s *Chat) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Append adds one message to the end of the conversation.
func (s *Chat) Append(msg domain.ChatMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notifier.notify()
}

// SetMessages replaces the whole list, used when bootstrapping a session
// from the remote store.
func (s *Chat) SetMessages(msgs []domain.ChatMessage) {
	s.mu.Lock()
	s.messages = make([]domain.ChatMessage, len(msgs))
	copy(s.messages, msgs)
	s.mu.Unlock()
	s.notifier.notify()
}

// Clear drops all messages.
func (s *Chat) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	s.notifier.notify()
}
