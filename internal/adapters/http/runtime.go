package httpadapter

import (
	"context"
	"sync"

	"github.com/quietpage/quietpage/internal/app/autosave"
	"github.com/quietpage/quietpage/internal/app/chat"
	"github.com/quietpage/quietpage/internal/app/history"
	"github.com/quietpage/quietpage/internal/domain"
	"github.com/quietpage/quietpage/internal/observability"
	"github.com/quietpage/quietpage/internal/state"
)

// userRuntime bundles the per-user stores and engines the host keeps alive
// between requests: one journal editor with its autosave engine, the history
// manager, and one chat engine per open conversation.
type userRuntime struct {
	journal      *state.Journal
	autosave     *autosave.Engine
	historyStore *state.History
	history      *history.Manager

	mu    sync.Mutex
	chats map[domain.ChatID]*chatRuntime
}

type chatRuntime struct {
	store  *state.Chat
	engine *chat.Engine
}

// user returns the runtime for userID, creating it on first touch. The
// history index is loaded eagerly; a load failure degrades to an empty index
// and is recorded on the history store.
func (s *Server) user(ctx context.Context, userID domain.UserID) *userRuntime {
	s.mu.Lock()
	ur, ok := s.users[userID]
	if !ok {
		journal := state.NewJournal()
		historyStore := state.NewHistory()
		ur = &userRuntime{
			journal: journal,
			autosave: autosave.New(s.blob, journal, userID, autosave.Options{
				Debounce:       s.cfg.AutosaveDebounce,
				RetryDelay:     s.cfg.AutosaveRetryDelay,
				MaxAttempts:    s.cfg.AutosaveMaxRetries,
				RequestTimeout: s.cfg.RequestTimeout,
			}),
			historyStore: historyStore,
			history:      history.NewManager(s.blob, historyStore, userID),
			chats:        make(map[domain.ChatID]*chatRuntime),
		}
		s.users[userID] = ur
	}
	s.mu.Unlock()

	if !ok {
		if err := ur.history.Load(ctx); err != nil {
			observability.LoggerFromContext(ctx).Warn("history load degraded to empty",
				"user_id", userID, "error", err)
		}
	}
	return ur
}

// chat returns the runtime for chatID, creating and bootstrapping one from
// the stored session summary when it is not yet open.
func (s *Server) chat(ctx context.Context, userID domain.UserID, chatID domain.ChatID) *chatRuntime {
	ur := s.user(ctx, userID)

	ur.mu.Lock()
	defer ur.mu.Unlock()
	if cr, ok := ur.chats[chatID]; ok {
		return cr
	}

	opts := chat.Options{
		ChatID:         chatID,
		BatchThreshold: s.cfg.ChatBatchThreshold,
		FlushInterval:  s.cfg.ChatFlushInterval,
		RequestTimeout: s.cfg.RequestTimeout,
	}
	if sess, ok := ur.historyStore.Get(chatID); ok {
		opts.SelectedTopics = sess.Topics
		if entry := ur.journal.Current(); entry != nil && entry.ID == sess.JournalEntryID {
			opts.JournalContext = entry.Content
		}
	}

	cr := &chatRuntime{store: state.NewChat()}
	cr.engine = chat.New(s.blob, s.reply, cr.store, userID, opts)
	cr.engine.SetHistory(ur.history)
	cr.engine.Start(ctx)
	ur.chats[chatID] = cr
	return cr
}

// openChat registers a freshly created session's runtime.
func (ur *userRuntime) openChat(chatID domain.ChatID, cr *chatRuntime) {
	ur.mu.Lock()
	ur.chats[chatID] = cr
	ur.mu.Unlock()
}

// closeChat tears down an open chat runtime, flushing any queued messages.
func (ur *userRuntime) closeChat(chatID domain.ChatID) {
	ur.mu.Lock()
	cr, ok := ur.chats[chatID]
	delete(ur.chats, chatID)
	ur.mu.Unlock()
	if ok {
		cr.engine.Close()
	}
}

// Close tears down every runtime the server holds.
func (s *Server) Close() {
	s.mu.Lock()
	users := make([]*userRuntime, 0, len(s.users))
	for _, ur := range s.users {
		users = append(users, ur)
	}
	s.users = make(map[domain.UserID]*userRuntime)
	s.mu.Unlock()

	for _, ur := range users {
		ur.autosave.Close()
		ur.mu.Lock()
		chats := make([]*chatRuntime, 0, len(ur.chats))
		for _, cr := range ur.chats {
			chats = append(chats, cr)
		}
		ur.chats = make(map[domain.ChatID]*chatRuntime)
		ur.mu.Unlock()
		for _, cr := range chats {
			cr.engine.Close()
		}
	}
}
