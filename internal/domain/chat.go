package domain

import "time"

// MessageMetadata carries optional cross-references from a message back to
// the journal surface that spawned it.
type MessageMetadata struct {
	TopicReferences   []string `json:"topicReferences,omitempty"`
	JournalReferences []string `json:"journalReferences,omitempty"`
}

// ChatMessage is immutable once created; insertion order is conversation
// order.
type ChatMessage struct {
	ID        MessageID        `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// ChatSession is the small, index-like summary of one conversation. The full
// message list is a separate blob keyed per session.
type ChatSession struct {
	ID             ChatID    `json:"id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	MessageCount   int       `json:"messageCount"`
	LastMessage    string    `json:"lastMessage"`
	Topics         []string  `json:"topics"`
	JournalEntryID EntryID   `json:"journalEntryId,omitempty"`
}
