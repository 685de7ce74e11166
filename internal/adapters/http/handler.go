package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietpage/quietpage/internal/app/chat"
	"github.com/quietpage/quietpage/internal/app/history"
	"github.com/quietpage/quietpage/internal/config"
	"github.com/quietpage/quietpage/internal/domain"
	"github.com/quietpage/quietpage/internal/observability"
	"github.com/quietpage/quietpage/internal/state"
)

// pinger is implemented by blob backends that can check connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	blob  domain.BlobStore
	reply domain.ReplyClient
	cfg   *config.Config

	mu    sync.Mutex
	users map[domain.UserID]*userRuntime
}

func NewServer(blob domain.BlobStore, reply domain.ReplyClient, cfg *config.Config) (http.Handler, *Server) {
	s := &Server{
		blob:  blob,
		reply: reply,
		cfg:   cfg,
		users: make(map[domain.UserID]*userRuntime),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/topics", s.handleTopics)

	// /journal/entries           → POST: create entry
	// /journal/entries/{id}      → PUT: observe content change
	// /journal/entries/{id}/save → POST: manual save
	mux.HandleFunc("/journal/entries", s.handleJournalEntries)
	mux.HandleFunc("/journal/entries/", s.handleJournalEntryWithID)
	mux.HandleFunc("/journal/status", s.handleJournalStatus)

	// /chats               → POST: start conversation
	// /chats/{id}          → GET: timeline, DELETE: remove
	// /chats/{id}/messages → POST: send message
	// /chats/{id}/reset    → POST: fresh conversation, same id
	mux.HandleFunc("/chats", s.handleChats)
	mux.HandleFunc("/chats/", s.handleChatWithID)

	mux.HandleFunc("/history", s.handleHistory)

	return chainMiddlewares(mux, withLogging, withCORS), s
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createEntryRequest struct {
	UserID string `json:"user_id"`
}

type entryResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	WordCount int       `json:"word_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type observeRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

type autosaveStatusResponse struct {
	State     string     `json:"state"`
	LastSaved *time.Time `json:"last_saved,omitempty"`
	Message   string     `json:"message,omitempty"`
	Saving    bool       `json:"saving"`
}

type createChatRequest struct {
	UserID         string   `json:"user_id"`
	Title          string   `json:"title"`
	Topics         []string `json:"topics,omitempty"`
	JournalEntryID string   `json:"journal_entry_id,omitempty"`
}

type sessionResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	MessageCount   int       `json:"message_count"`
	LastMessage    string    `json:"last_message"`
	Topics         []string  `json:"topics"`
	JournalEntryID string    `json:"journal_entry_id,omitempty"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type sendMessageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	UserMessage      messageResponse  `json:"user_message"`
	AssistantMessage *messageResponse `json:"assistant_message,omitempty"`
}

type timelineResponse struct {
	ChatID   string            `json:"chat_id"`
	Messages []messageResponse `json:"messages"`
	Loading  bool              `json:"loading"`
	Error    string            `json:"error,omitempty"`
}

type historyResponse struct {
	Sessions       []sessionResponse `json:"sessions"`
	LastAccessedID string            `json:"last_accessed_id,omitempty"`
	Loading        bool              `json:"loading"`
	Error          string            `json:"error,omitempty"`
}

// ─────────────────────────────────────────────
// Health & topics
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.blob.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"topics":         domain.DefaultTopics,
		"max_selections": domain.MaxTopicSelections,
	})
}

// ─────────────────────────────────────────────
// Journal handlers
// ─────────────────────────────────────────────

func (s *Server) handleJournalEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	ur := s.user(r.Context(), domain.UserID(req.UserID))
	entry := domain.NewJournalEntry(
		domain.EntryID(uuid.NewString()),
		domain.UserID(req.UserID),
		time.Now(),
	)
	ur.journal.Add(entry)

	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (s *Server) handleJournalEntryWithID(w http.ResponseWriter, r *http.Request) {
	// expected path:
	// /journal/entries/{id}
	// /journal/entries/{id}/save
	path := strings.TrimPrefix(r.URL.Path, "/journal/entries/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := domain.EntryID(parts[0])

	if len(parts) == 1 {
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		s.handleObserve(w, r, id)
		return
	}

	if len(parts) == 2 && parts[1] == "save" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleManualSave(w, r, id)
		return
	}

	http.NotFound(w, r)
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request, id domain.EntryID) {
	var req observeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}
	if err := domain.ValidateContent(req.Content); err != nil {
		badRequest(w, err.Error())
		return
	}

	ur := s.user(r.Context(), domain.UserID(req.UserID))
	if cur := ur.journal.Current(); cur == nil || cur.ID != id {
		http.NotFound(w, r)
		return
	}

	ur.journal.UpdateContent(req.Content, time.Now())
	ur.autosave.Observe(id, req.Content)

	writeJSON(w, http.StatusAccepted, toStatusResponse(ur))
}

func (s *Server) handleManualSave(w http.ResponseWriter, r *http.Request, id domain.EntryID) {
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	ur := s.user(r.Context(), domain.UserID(req.UserID))
	if cur := ur.journal.Current(); cur == nil || cur.ID != id {
		http.NotFound(w, r)
		return
	}

	if err := ur.autosave.SaveNow(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"status": toStatusResponse(ur),
		})
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(ur))
}

func (s *Server) handleJournalStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}

	ur := s.user(r.Context(), domain.UserID(userID))
	resp := map[string]any{"status": toStatusResponse(ur)}
	if entry := ur.journal.Current(); entry != nil {
		resp["entry"] = toEntryResponse(entry)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─────────────────────────────────────────────
// Chat handlers
// ─────────────────────────────────────────────

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}
	if err := domain.ValidateTopicSelection(req.Topics); err != nil {
		badRequest(w, err.Error())
		return
	}

	userID := domain.UserID(req.UserID)
	ur := s.user(r.Context(), userID)

	session, err := ur.history.Add(r.Context(), history.NewSessionInput{
		Title:          req.Title,
		Topics:         req.Topics,
		JournalEntryID: domain.EntryID(req.JournalEntryID),
	})
	if err != nil {
		// Local index already holds the session; the caller retries or
		// proceeds with the recorded error.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   err.Error(),
			"session": toSessionResponse(*session),
		})
		return
	}

	opts := chat.Options{
		ChatID:         session.ID,
		SelectedTopics: req.Topics,
		WelcomeMessage: "Thanks for sharing your entry. What would you like to start with?",
		BatchThreshold: s.cfg.ChatBatchThreshold,
		FlushInterval:  s.cfg.ChatFlushInterval,
		RequestTimeout: s.cfg.RequestTimeout,
	}
	if entry := ur.journal.Current(); entry != nil && entry.ID == session.JournalEntryID {
		opts.JournalContext = entry.Content
	}

	cr := &chatRuntime{store: state.NewChat()}
	cr.engine = chat.New(s.blob, s.reply, cr.store, userID, opts)
	cr.engine.SetHistory(ur.history)
	cr.engine.Start(r.Context())
	ur.openChat(session.ID, cr)

	writeJSON(w, http.StatusCreated, map[string]any{
		"session":  toSessionResponse(*session),
		"messages": toMessagesResponse(cr.store.Messages()),
	})
}

func (s *Server) handleChatWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/chats/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	chatID := domain.ChatID(parts[0])

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleTimeline(w, r, chatID)
		case http.MethodDelete:
			s.handleDeleteChat(w, r, chatID)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "messages":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			s.handleSendMessage(w, r, chatID)
			return
		case "reset":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			s.handleResetChat(w, r, chatID)
			return
		}
	}

	http.NotFound(w, r)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, chatID domain.ChatID) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}

	cr := s.chat(r.Context(), domain.UserID(req.UserID), chatID)
	userMsg, assistantMsg, err := cr.engine.SendMessage(r.Context(), req.Text)
	if err != nil {
		// The user's message is kept locally and queued; only the reply is
		// missing. 502 tells the client to offer a resend.
		resp := map[string]any{"error": err.Error()}
		if userMsg != nil {
			resp["user_message"] = toMessageResponse(*userMsg)
		}
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	resp := sendMessageResponse{UserMessage: toMessageResponse(*userMsg)}
	if assistantMsg != nil {
		m := toMessageResponse(*assistantMsg)
		resp.AssistantMessage = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request, chatID domain.ChatID) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}

	ur := s.user(r.Context(), domain.UserID(userID))
	cr := s.chat(r.Context(), domain.UserID(userID), chatID)

	// Opening a timeline moves the last-accessed pointer; a persist failure
	// is already recorded on the history store.
	if err := ur.history.MarkAccessed(r.Context(), chatID); err != nil {
		observability.LoggerFromContext(r.Context()).Warn("failed to record session access",
			"chat_id", chatID, "error", err)
	}
	resp := timelineResponse{
		ChatID:   string(chatID),
		Messages: toMessagesResponse(cr.store.Messages()),
		Loading:  cr.engine.Loading(),
	}
	if err := cr.engine.LastError(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetChat(w http.ResponseWriter, r *http.Request, chatID domain.ChatID) {
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	cr := s.chat(r.Context(), domain.UserID(req.UserID), chatID)
	if err := cr.engine.Reset(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request, chatID domain.ChatID) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}

	ur := s.user(r.Context(), domain.UserID(userID))
	ur.closeChat(chatID)

	if err := ur.history.Remove(r.Context(), chatID); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ─────────────────────────────────────────────
// History handler
// ─────────────────────────────────────────────

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}

	ur := s.user(r.Context(), domain.UserID(userID))

	var sessions []domain.ChatSession
	q := r.URL.Query()
	switch {
	case q.Get("q") != "":
		sessions = ur.history.Search(q.Get("q"))
	case q.Get("journal_entry_id") != "":
		sessions = ur.history.ByJournalEntry(domain.EntryID(q.Get("journal_entry_id")))
	case q.Get("recent") != "":
		n := parseIntDefault(q.Get("recent"), 5)
		sessions = ur.history.Recent(n)
	default:
		sessions = ur.historyStore.Sessions()
	}

	resp := historyResponse{
		Sessions:       toSessionsResponse(sessions),
		LastAccessedID: string(ur.historyStore.LastAccessedID()),
		Loading:        ur.historyStore.Loading(),
	}
	if err := ur.historyStore.LastError(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─────────────────────────────────────────────
// Response helpers
// ─────────────────────────────────────────────

func toEntryResponse(e *domain.JournalEntry) entryResponse {
	return entryResponse{
		ID:        string(e.ID),
		UserID:    string(e.UserID),
		Content:   e.Content,
		Status:    string(e.Status),
		WordCount: e.WordCount,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func toStatusResponse(ur *userRuntime) autosaveStatusResponse {
	st := ur.journal.AutosaveStatus()
	resp := autosaveStatusResponse{
		State:   string(st.State),
		Message: st.Message,
		Saving:  ur.autosave.Saving(),
	}
	if !st.LastSaved.IsZero() {
		t := st.LastSaved
		resp.LastSaved = &t
	}
	return resp
}

func toSessionResponse(s domain.ChatSession) sessionResponse {
	return sessionResponse{
		ID:             string(s.ID),
		Title:          s.Title,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		MessageCount:   s.MessageCount,
		LastMessage:    s.LastMessage,
		Topics:         s.Topics,
		JournalEntryID: string(s.JournalEntryID),
	}
}

func toSessionsResponse(sessions []domain.ChatSession) []sessionResponse {
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	return out
}

func toMessageResponse(m domain.ChatMessage) messageResponse {
	return messageResponse{
		ID:        string(m.ID),
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

func toMessagesResponse(msgs []domain.ChatMessage) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func parseIntDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
