package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quietpage/quietpage/internal/domain"
	"github.com/quietpage/quietpage/internal/observability"
	"github.com/quietpage/quietpage/internal/state"
)

const DefaultRequestTimeout = 10 * time.Second

// Manager keeps the per-user index of conversation summaries consistent with
// the blob store. Mutations are local-first: the store changes immediately,
// then the whole index is written remotely as one blob. A remote failure is
// recorded on the store and returned, the local mutation stays.
type Manager struct {
	blob    domain.BlobStore
	store   *state.History
	userID  domain.UserID
	timeout time.Duration
	now     func() time.Time
}

func NewManager(blob domain.BlobStore, store *state.History, userID domain.UserID) *Manager {
	return &Manager{
		blob:    blob,
		store:   store,
		userID:  userID,
		timeout: DefaultRequestTimeout,
		now:     time.Now,
	}
}

// indexPayload is the single metadata blob shared by all of a user's
// sessions. lastAccessedId is null when no session is selected.
type indexPayload struct {
	Sessions       []domain.ChatSession `json:"sessions"`
	LastAccessedID *string              `json:"lastAccessedId"`
}

// Load pulls the index from the blob store into the local store. A read
// failure is non-fatal for the caller's UI: it is recorded on the store and
// the index degrades to empty.
func (m *Manager) Load(ctx context.Context) error {
	log := observability.LoggerFromContext(ctx).With("user_id", m.userID)

	m.store.SetLoading(true)
	defer m.store.SetLoading(false)
	m.store.SetError(nil)

	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var payload indexPayload
	found, err := m.blob.Get(rctx, domain.HistoryIndexPath(m.userID), &payload)
	if err != nil {
		err = fmt.Errorf("load chat history: %w", err)
		log.Error("failed to load chat history", "error", err)
		m.store.SetError(err)
		return err
	}
	if !found {
		m.store.SetSessions(nil, "")
		return nil
	}

	var lastAccessed domain.ChatID
	if payload.LastAccessedID != nil {
		lastAccessed = domain.ChatID(*payload.LastAccessedID)
	}
	m.store.SetSessions(payload.Sessions, lastAccessed)
	log.Info("chat history loaded", "session_count", len(payload.Sessions))
	return nil
}

// Refresh re-runs Load.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.Load(ctx)
}

type NewSessionInput struct {
	ID             domain.ChatID // optional, generated when empty
	Title          string
	Topics         []string
	JournalEntryID domain.EntryID
}

// Add creates a session summary, prepends it to the local index and persists
// the whole index.
func (m *Manager) Add(ctx context.Context, in NewSessionInput) (*domain.ChatSession, error) {
	id := in.ID
	if id == "" {
		id = domain.ChatID(uuid.NewString())
	}
	now := m.now()

	session := domain.ChatSession{
		ID:             id,
		Title:          in.Title,
		CreatedAt:      now,
		UpdatedAt:      now,
		Topics:         append([]string(nil), in.Topics...),
		JournalEntryID: in.JournalEntryID,
	}

	m.store.Add(session)
	if err := m.persist(ctx); err != nil {
		return &session, err
	}
	return &session, nil
}

// Update applies partial fields to a session and persists the index.
func (m *Manager) Update(ctx context.Context, id domain.ChatID, upd state.SessionUpdate) error {
	if !m.store.Update(id, upd, m.now()) {
		return fmt.Errorf("chat session %s not found", id)
	}
	return m.persist(ctx)
}

// Touch refreshes a session's message count, last-message preview and
// UpdatedAt after a flush. Sessions not yet in the index are skipped; Add
// owns their creation.
func (m *Manager) Touch(ctx context.Context, id domain.ChatID, messageCount int, lastMessage string) error {
	upd := state.SessionUpdate{
		MessageCount: &messageCount,
		LastMessage:  &lastMessage,
	}
	if !m.store.Update(id, upd, m.now()) {
		return nil
	}
	return m.persist(ctx)
}

// MarkAccessed records id as the most recently opened session and persists
// the index. Unknown sessions and no-op moves are skipped.
func (m *Manager) MarkAccessed(ctx context.Context, id domain.ChatID) error {
	if _, ok := m.store.Get(id); !ok {
		return nil
	}
	if m.store.LastAccessedID() == id {
		return nil
	}
	m.store.SetLastAccessed(id)
	return m.persist(ctx)
}

// Remove deletes a session: the local index entry goes first, then the
// session's message blob is nulled out, then the index is rewritten without
// the entry.
func (m *Manager) Remove(ctx context.Context, id domain.ChatID) error {
	log := observability.LoggerFromContext(ctx).With("user_id", m.userID, "chat_id", id)

	if !m.store.Delete(id) {
		return fmt.Errorf("chat session %s not found", id)
	}

	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.blob.Put(rctx, domain.MessagesPath(m.userID, id), nil); err != nil {
		err = fmt.Errorf("delete chat messages: %w", err)
		log.Error("failed to null out chat messages", "error", err)
		m.store.SetError(err)
		return err
	}

	if err := m.persist(ctx); err != nil {
		return err
	}
	log.Info("chat session removed")
	return nil
}

// ─────────────────────────────────────────
// Pure query helpers (in-memory index only)
// ─────────────────────────────────────────

// Recent returns the n sessions with greatest update time, descending.
func (m *Manager) Recent(n int) []domain.ChatSession {
	sessions := m.store.Sessions()
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	if n >= 0 && len(sessions) > n {
		sessions = sessions[:n]
	}
	return sessions
}

// Search matches title or any topic substring, case-insensitively.
func (m *Manager) Search(query string) []domain.ChatSession {
	q := strings.ToLower(query)
	var out []domain.ChatSession
	for _, sess := range m.store.Sessions() {
		if strings.Contains(strings.ToLower(sess.Title), q) {
			out = append(out, sess)
			continue
		}
		for _, topic := range sess.Topics {
			if strings.Contains(strings.ToLower(topic), q) {
				out = append(out, sess)
				break
			}
		}
	}
	return out
}

// ByJournalEntry returns the sessions spawned from a journal entry.
func (m *Manager) ByJournalEntry(entryID domain.EntryID) []domain.ChatSession {
	var out []domain.ChatSession
	for _, sess := range m.store.Sessions() {
		if sess.JournalEntryID == entryID {
			out = append(out, sess)
		}
	}
	return out
}

// persist writes the entire current index as one blob keyed by the user.
func (m *Manager) persist(ctx context.Context) error {
	payload := indexPayload{
		Sessions: m.store.Sessions(),
	}
	if id := m.store.LastAccessedID(); id != "" {
		s := string(id)
		payload.LastAccessedID = &s
	}

	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.blob.Put(rctx, domain.HistoryIndexPath(m.userID), payload); err != nil {
		err = fmt.Errorf("persist chat history: %w", err)
		observability.LoggerFromContext(ctx).Error("failed to persist chat history",
			"user_id", m.userID, "error", err)
		m.store.SetError(err)
		return err
	}
	return nil
}
