package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietpage/quietpage/internal/app/history"
	"github.com/quietpage/quietpage/internal/domain"
	"github.com/quietpage/quietpage/internal/observability"
	"github.com/quietpage/quietpage/internal/state"
)

const (
	DefaultBatchThreshold = 5
	DefaultFlushInterval  = 30 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

var ErrEmptyMessage = errors.New("message content is empty")

type Options struct {
	ChatID          domain.ChatID // generated when empty
	JournalContext  string
	SelectedTopics  []string
	InitialMessages []domain.ChatMessage
	// WelcomeMessage seeds an assistant greeting when the session has no
	// prior history and no initial messages. Empty disables it.
	WelcomeMessage string

	BatchThreshold int
	FlushInterval  time.Duration
	RequestTimeout time.Duration
}

func (o *Options) withDefaults() {
	if o.ChatID == "" {
		o.ChatID = domain.ChatID(uuid.NewString())
	}
	if o.BatchThreshold <= 0 {
		o.BatchThreshold = DefaultBatchThreshold
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
}

// Engine owns the persistence of one conversation: it appends messages to the
// local store optimistically, batches them into a pending queue, and flushes
// the full message list to the blob store when the queue reaches the batch
// threshold, on a fixed interval, and on Close. A failed flush dequeues
// nothing; the remote list is always a prefix-consistent snapshot of local
// state as of the last successful flush.
type Engine struct {
	blob    domain.BlobStore
	reply   domain.ReplyClient
	chat    *state.Chat
	hist    *history.Manager // optional summary re-touch on flush
	userID  domain.UserID
	opts    Options
	now     func() time.Time
	newID   func() domain.MessageID
	flushMu sync.Mutex

	mu      sync.Mutex
	pending []domain.ChatMessage
	loading bool
	lastErr error
	closed  bool
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func New(blob domain.BlobStore, reply domain.ReplyClient, chatStore *state.Chat, userID domain.UserID, opts Options) *Engine {
	opts.withDefaults()
	return &Engine{
		blob:   blob,
		reply:  reply,
		chat:   chatStore,
		userID: userID,
		opts:   opts,
		now:    time.Now,
		newID:  func() domain.MessageID { return domain.MessageID(uuid.NewString()) },
		done:   make(chan struct{}),
	}
}

// SetHistory wires the history manager so that every successful flush
// re-touches the session summary.
func (e *Engine) SetHistory(hist *history.Manager) {
	e.mu.Lock()
	e.hist = hist
	e.mu.Unlock()
}

func (e *Engine) ChatID() domain.ChatID {
	return e.opts.ChatID
}

// Start bootstraps the session: prior messages are loaded from the blob
// store; when none exist the session is seeded from Options. A load failure
// is non-fatal: it is recorded and the session proceeds empty. Start also
// launches the periodic flush loop.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.loading = true
	e.mu.Unlock()

	log := observability.LoggerFromContext(ctx).With(
		"user_id", e.userID,
		"chat_id", e.opts.ChatID,
	)

	rctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	var msgs []domain.ChatMessage
	found, err := e.blob.Get(rctx, e.messagesPath(), &msgs)
	cancel()

	switch {
	case err != nil:
		log.Error("failed to load chat history", "error", err)
		e.recordError(fmt.Errorf("load chat messages: %w", err))
	case found:
		e.chat.SetMessages(msgs)
		log.Info("chat session restored", "message_count", len(msgs))
	case len(e.opts.InitialMessages) > 0:
		e.chat.SetMessages(e.opts.InitialMessages)
	case e.opts.WelcomeMessage != "":
		welcome := domain.ChatMessage{
			ID:        e.newID(),
			Role:      domain.RoleAssistant,
			Content:   e.opts.WelcomeMessage,
			Timestamp: e.now(),
		}
		e.chat.SetMessages([]domain.ChatMessage{welcome})
		e.mu.Lock()
		e.pending = append(e.pending, welcome)
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.loading = false
	e.mu.Unlock()

	e.wg.Add(1)
	go e.flushLoop()
}

// SendMessage appends the user's message locally and to the pending queue,
// asks the AI collaborator for a reply, and appends the assistant message the
// same way. A reply failure does not retract the user's message; the caller
// may simply send again.
func (e *Engine) SendMessage(ctx context.Context, content string) (*domain.ChatMessage, *domain.ChatMessage, error) {
	if err := e.closedErr(); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil, ErrEmptyMessage
	}

	log := observability.LoggerFromContext(ctx).With(
		"user_id", e.userID,
		"chat_id", e.opts.ChatID,
	)

	userMsg := domain.ChatMessage{
		ID:        e.newID(),
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: e.now(),
	}
	e.append(ctx, userMsg)

	rctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	replyText, err := e.reply.GenerateReply(rctx, domain.ReplyRequest{
		Message:        content,
		JournalContext: e.opts.JournalContext,
		SelectedTopics: e.opts.SelectedTopics,
		ChatID:         e.opts.ChatID,
	})
	cancel()
	if err != nil {
		err = fmt.Errorf("generate reply: %w", err)
		log.Error("reply failed", "error", err)
		e.recordError(err)
		return &userMsg, nil, err
	}

	assistantMsg := domain.ChatMessage{
		ID:        e.newID(),
		Role:      domain.RoleAssistant,
		Content:   replyText,
		Timestamp: e.now(),
	}
	e.append(ctx, assistantMsg)

	log.Info("message exchanged")
	return &userMsg, &assistantMsg, nil
}

// Flush writes the current local message list to the blob store. Entries that
// were pending when the snapshot was taken are dequeued on success; a failure
// leaves the queue untouched for the next attempt.
func (e *Engine) Flush(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	n := len(e.pending)
	e.mu.Unlock()
	if n == 0 {
		return nil
	}

	snapshot := e.chat.Messages()

	rctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	err := e.blob.Put(rctx, e.messagesPath(), snapshot)
	cancel()
	if err != nil {
		err = fmt.Errorf("flush chat messages: %w", err)
		observability.LoggerFromContext(ctx).Error("flush failed",
			"chat_id", e.opts.ChatID, "queued", n, "error", err)
		e.recordError(err)
		return err
	}

	e.mu.Lock()
	e.pending = e.pending[n:]
	hist := e.hist
	e.mu.Unlock()

	if hist != nil && len(snapshot) > 0 {
		last := snapshot[len(snapshot)-1]
		if err := hist.Touch(ctx, e.opts.ChatID, len(snapshot), last.Content); err != nil {
			observability.LoggerFromContext(ctx).Warn("summary touch failed",
				"chat_id", e.opts.ChatID, "error", err)
		}
	}
	return nil
}

// Reset starts a fresh conversation under the same identifier: local
// messages and the pending queue are cleared and an empty list is written
// remotely.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.closedErr(); err != nil {
		return err
	}

	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()
	e.chat.Clear()

	rctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	err := e.blob.Put(rctx, e.messagesPath(), []domain.ChatMessage{})
	cancel()
	if err != nil {
		err = fmt.Errorf("reset chat: %w", err)
		e.recordError(err)
		return err
	}
	return nil
}

// Loading reports whether the session bootstrap is in progress.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// LastError returns the most recent recorded failure, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// PendingCount reports how many messages await the next flush.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close stops the flush timer and, when the queue is non-empty, attempts one
// final best-effort flush before teardown completes.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	started := e.started
	close(e.done)
	e.mu.Unlock()

	if started {
		e.wg.Wait()
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.RequestTimeout)
	defer cancel()
	if err := e.Flush(ctx); err != nil {
		observability.Logger().Warn("final flush failed",
			"chat_id", e.opts.ChatID, "error", err)
	}
}

// append adds a message to the local store and the pending queue, then
// flushes when the queue hits the batch threshold.
func (e *Engine) append(ctx context.Context, msg domain.ChatMessage) {
	e.chat.Append(msg)

	e.mu.Lock()
	e.pending = append(e.pending, msg)
	full := len(e.pending) >= e.opts.BatchThreshold
	e.mu.Unlock()

	if full {
		// Errors are recorded; the queue keeps the messages.
		_ = e.Flush(ctx)
	}
}

func (e *Engine) flushLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.mu.Lock()
			n := len(e.pending)
			e.mu.Unlock()
			if n > 0 {
				_ = e.Flush(context.Background())
			}
		case <-e.done:
			return
		}
	}
}

func (e *Engine) messagesPath() string {
	return domain.MessagesPath(e.userID, e.opts.ChatID)
}

func (e *Engine) recordError(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

func (e *Engine) closedErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("chat engine is closed")
	}
	return nil
}
