package state

import (
	"sync"
	"time"

	"github.com/quietpage/quietpage/internal/domain"
)

// SessionUpdate carries the partial fields History.Update may change. Nil
// fields are left untouched. ID and CreatedAt are immutable.
type SessionUpdate struct {
	Title          *string
	MessageCount   *int
	LastMessage    *string
	Topics         []string
	JournalEntryID *domain.EntryID
}

// History holds the per-user index of conversation summaries, newest first,
// plus the loading flag and last error surfaced to the UI layer.
type History struct {
	mu           sync.RWMutex
	sessions     []domain.ChatSession
	lastAccessed domain.ChatID
	loading      bool
	lastErr      error

	notifier notifier
}

func NewHistory() *History {
	return &History{}
}

func (s *History) Subscribe(fn func()) func() {
	return s.notifier.subscribe(fn)
}

// Sessions returns a copy of the index in its current order.
func (s *History) Sessions() []domain.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChatSession, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// LastAccessedID returns the most recently accessed session id, or "".
func (s *History) LastAccessedID() domain.ChatID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccessed
}

func (s *History) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *History) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Get returns the session with the given id.
func (s *History) Get(id domain.ChatID) (domain.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return domain.ChatSession{}, false
}

// SetSessions replaces the whole index, used on load.
func (s *History) SetSessions(sessions []domain.ChatSession, lastAccessed domain.ChatID) {
	s.mu.Lock()
	s.sessions = make([]domain.ChatSession, len(sessions))
	copy(s.sessions, sessions)
	s.lastAccessed = lastAccessed
	s.mu.Unlock()
	s.notifier.notify()
}

// Add prepends a session and marks it last accessed.
func (s *History) Add(session domain.ChatSession) {
	s.mu.Lock()
	s.sessions = append([]domain.ChatSession{session}, s.sessions...)
	s.lastAccessed = session.ID
	s.mu.Unlock()
	s.notifier.notify()
}

// Update applies partial fields to the session with the given id and touches
// its UpdatedAt. Returns false when the id is unknown.
func (s *History) Update(id domain.ChatID, upd SessionUpdate, now time.Time) bool {
	s.mu.Lock()
	found := false
	for i := range s.sessions {
		if s.sessions[i].ID != id {
			continue
		}
		sess := &s.sessions[i]
		if upd.Title != nil {
			sess.Title = *upd.Title
		}
		if upd.MessageCount != nil {
			sess.MessageCount = *upd.MessageCount
		}
		if upd.LastMessage != nil {
			sess.LastMessage = *upd.LastMessage
		}
		if upd.Topics != nil {
			sess.Topics = append([]string(nil), upd.Topics...)
		}
		if upd.JournalEntryID != nil {
			sess.JournalEntryID = *upd.JournalEntryID
		}
		sess.UpdatedAt = now
		found = true
		break
	}
	s.mu.Unlock()
	if found {
		s.notifier.notify()
	}
	return found
}

// Delete removes the session. When it was the last accessed one, the pointer
// falls back to the head of the remaining list, or to none.
func (s *History) Delete(id domain.ChatID) bool {
	s.mu.Lock()
	found := false
	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.ID == id {
			found = true
			continue
		}
		kept = append(kept, sess)
	}
	s.sessions = kept
	if found && s.lastAccessed == id {
		if len(s.sessions) > 0 {
			s.lastAccessed = s.sessions[0].ID
		} else {
			s.lastAccessed = ""
		}
	}
	s.mu.Unlock()
	if found {
		s.notifier.notify()
	}
	return found
}

// SetLastAccessed moves the last-accessed pointer.
func (s *History) SetLastAccessed(id domain.ChatID) {
	s.mu.Lock()
	s.lastAccessed = id
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *History) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *History) SetError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.notifier.notify()
}
