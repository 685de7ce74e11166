package domain

type UserID string
type EntryID string
type ChatID string
type MessageID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)
