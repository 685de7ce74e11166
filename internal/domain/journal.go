package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentChars bounds the length of a journal entry.
const MaxContentChars = 5000

var ErrContentTooLong = fmt.Errorf("journal content exceeds %d characters", MaxContentChars)

type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "draft"
	EntryStatusCompleted EntryStatus = "completed"
)

// JournalEntry is the unit of writing. ID, UserID and CreatedAt are fixed at
// creation; Content and UpdatedAt change on every edit, Status only moves
// draft → completed.
type JournalEntry struct {
	ID        EntryID     `json:"id"`
	UserID    UserID      `json:"userId"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Status    EntryStatus `json:"status"`
	WordCount int         `json:"wordCount"`
}

// NewJournalEntry creates an empty draft owned by userID.
func NewJournalEntry(id EntryID, userID UserID, now time.Time) *JournalEntry {
	return &JournalEntry{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    EntryStatusDraft,
	}
}

// Complete transitions the entry to completed. Completed entries stay
// completed.
func (e *JournalEntry) Complete() error {
	if e.Status == EntryStatusCompleted {
		return errors.New("entry already completed")
	}
	e.Status = EntryStatusCompleted
	return nil
}

// ValidateContent rejects content the engine must never send to the store.
// The cap counts characters, not bytes.
func ValidateContent(content string) error {
	if utf8.RuneCountInString(content) > MaxContentChars {
		return ErrContentTooLong
	}
	return nil
}

// CountWords counts whitespace-separated words.
func CountWords(content string) int {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0
	}
	return len(strings.Fields(trimmed))
}

type AutosaveState string

const (
	AutosaveIdle   AutosaveState = "idle"
	AutosaveSaving AutosaveState = "saving"
	AutosaveSaved  AutosaveState = "saved"
	AutosaveError  AutosaveState = "error"
)

// AutosaveStatus is a value, replaced wholesale on every transition. Only the
// autosave engine writes it; everything else reads.
type AutosaveStatus struct {
	State     AutosaveState `json:"state"`
	LastSaved time.Time     `json:"lastSaved,omitempty"`
	Message   string        `json:"message,omitempty"`
}
