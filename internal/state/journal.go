package state

import (
	"errors"
	"sync"
	"time"

	"github.com/quietpage/quietpage/internal/domain"
)

var errNoCurrentEntry = errors.New("no entry is being edited")

// Journal holds the entry currently being edited plus the autosave status.
// It is the single source of truth for the editor surface; the autosave
// engine observes it and is the only writer of the autosave status.
type Journal struct {
	mu       sync.RWMutex
	current  *domain.JournalEntry
	entries  []*domain.JournalEntry
	autosave domain.AutosaveStatus

	notifier notifier
}

func NewJournal() *Journal {
	return &Journal{
		autosave: domain.AutosaveStatus{State: domain.AutosaveIdle},
	}
}

// Subscribe registers fn to run after every mutation. The returned func
// cancels the subscription.
func (s *Journal) Subscribe(fn func()) func() {
	return s.notifier.subscribe(fn)
}

// Current returns a copy of the entry being edited, or nil.
func (s *Journal) Current() *domain.JournalEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

// AutosaveStatus returns the current autosave status value.
func (s *Journal) AutosaveStatus() domain.AutosaveStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autosave
}

// Entries returns a copy of all known entries.
func (s *Journal) Entries() []*domain.JournalEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.JournalEntry, len(s.entries))
	for i, e := range s.entries {
		c := *e
		out[i] = &c
	}
	return out
}

// Add registers a new entry and makes it current.
func (s *Journal) Add(entry *domain.JournalEntry) {
	s.mu.Lock()
	c := *entry
	s.entries = append(s.entries, &c)
	s.current = &c
	s.mu.Unlock()
	s.notifier.notify()
}

// SetCurrent switches which entry is being edited. The entry must already be
// known to the store; unknown entries are added.
func (s *Journal) SetCurrent(entry *domain.JournalEntry) {
	s.mu.Lock()
	c := *entry
	found := false
	for i, e := range s.entries {
		if e.ID == c.ID {
			s.entries[i] = &c
			found = true
			break
		}
	}
	if !found {
		s.entries = append(s.entries, &c)
	}
	s.current = &c
	s.mu.Unlock()
	s.notifier.notify()
}

// UpdateContent mutates the current entry's content, recomputing the word
// count and touching UpdatedAt. Returns false when no entry is current.
func (s *Journal) UpdateContent(content string, now time.Time) bool {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return false
	}
	s.current.Content = content
	s.current.WordCount = domain.CountWords(content)
	s.current.UpdatedAt = now
	s.mu.Unlock()
	s.notifier.notify()
	return true
}

// Complete marks the current entry completed.
func (s *Journal) Complete() error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return errNoCurrentEntry
	}
	err := s.current.Complete()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notifier.notify()
	return nil
}

// SetAutosaveStatus replaces the autosave status value. Owned by the
// autosave engine; other callers only read.
func (s *Journal) SetAutosaveStatus(status domain.AutosaveStatus) {
	s.mu.Lock()
	s.autosave = status
	s.mu.Unlock()
	s.notifier.notify()
}

// ApplySaved records a successful remote save of entryID: UpdatedAt on the
// entry moves to the save time. Content is left alone, it may already be
// ahead of what was saved.
func (s *Journal) ApplySaved(entryID domain.EntryID, savedAt time.Time) {
	s.mu.Lock()
	if s.current != nil && s.current.ID == entryID {
		s.current.UpdatedAt = savedAt
	}
	s.mu.Unlock()
	s.notifier.notify()
}
