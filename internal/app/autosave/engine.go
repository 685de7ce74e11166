package autosave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quietpage/quietpage/internal/domain"
	"github.com/quietpage/quietpage/internal/observability"
	"github.com/quietpage/quietpage/internal/state"
)

// Defaults mirror the editor's behavior: a save fires once content has been
// quiet for a second, failed writes are retried twice more, two seconds
// apart.
const (
	DefaultDebounce       = 1000 * time.Millisecond
	DefaultRetryDelay     = 2000 * time.Millisecond
	DefaultMaxAttempts    = 3
	DefaultRequestTimeout = 10 * time.Second
)

var ErrClosed = errors.New("autosave engine is closed")

type Options struct {
	Debounce       time.Duration
	RetryDelay     time.Duration
	MaxAttempts    int
	RequestTimeout time.Duration
}

func (o *Options) withDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
}

type saveJob struct {
	entryID domain.EntryID
	content string
}

// Engine debounces journal content changes, writes them to the blob store and
// reports progress through the journal store's autosave status. Saves to the
// same entry never overlap: while one save (including its retries) is in
// flight, the latest observed content waits for it to settle.
type Engine struct {
	blob    domain.BlobStore
	journal *state.Journal
	userID  domain.UserID
	opts    Options
	now     func() time.Time

	mu     sync.Mutex
	timer  *time.Timer
	saving bool
	queued *saveJob
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func New(blob domain.BlobStore, journal *state.Journal, userID domain.UserID, opts Options) *Engine {
	opts.withDefaults()
	return &Engine{
		blob:    blob,
		journal: journal,
		userID:  userID,
		opts:    opts,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Observe registers a content change for entryID. The save is scheduled, not
// synchronous: it fires once content has been quiet for the debounce period,
// and every call resets the timer. Empty or whitespace-only content cancels
// any pending save instead of scheduling one.
func (e *Engine) Observe(entryID domain.EntryID, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if strings.TrimSpace(content) == "" {
		return
	}
	job := saveJob{entryID: entryID, content: content}
	e.timer = time.AfterFunc(e.opts.Debounce, func() {
		e.enqueue(job)
	})
}

// SaveNow saves the current entry immediately, bypassing the debounce timer
// but going through the same write/retry path. When a save is already in
// flight the content is folded into it as the next pending save and SaveNow
// returns nil; the autosave status reports the outcome.
func (e *Engine) SaveNow(ctx context.Context) error {
	entry := e.journal.Current()
	if entry == nil {
		return errors.New("no entry to save")
	}
	if strings.TrimSpace(entry.Content) == "" {
		return nil
	}
	job := saveJob{entryID: entry.ID, content: entry.Content}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.saving {
		e.queued = &job
		e.mu.Unlock()
		return nil
	}
	e.saving = true
	e.mu.Unlock()

	err := e.save(ctx, job)
	e.settle()
	return err
}

// Saving reports whether a save (including retries) is in flight. The host
// environment uses it to warn before discarding in-flight work.
func (e *Engine) Saving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saving
}

// Close cancels the pending debounce timer, stops further retries and waits
// for the in-flight save goroutine to return. No save fires after Close.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	close(e.done)
	e.mu.Unlock()
	e.wg.Wait()
}

// enqueue starts a save for job, or records it as the next pending save when
// one is already in flight. Later jobs supersede earlier pending ones.
func (e *Engine) enqueue(job saveJob) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.saving {
		e.queued = &job
		e.mu.Unlock()
		return
	}
	e.saving = true
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		e.save(context.Background(), job)
		e.settle()
	}()
}

// settle clears the saving flag, or chains into the pending save when the
// content changed while the previous save was in flight.
func (e *Engine) settle() {
	for {
		e.mu.Lock()
		if e.queued == nil || e.closed {
			e.saving = false
			e.mu.Unlock()
			return
		}
		job := *e.queued
		e.queued = nil
		e.mu.Unlock()

		e.save(context.Background(), job)
	}
}

type journalPayload struct {
	ID        domain.EntryID `json:"id"`
	Content   string         `json:"content"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// save runs the bounded write/retry loop for one job and drives the autosave
// status through saving → saved, or saving → error after the final attempt.
func (e *Engine) save(ctx context.Context, job saveJob) error {
	log := observability.LoggerFromContext(ctx).With(
		"entry_id", job.entryID,
		"user_id", e.userID,
	)

	if err := domain.ValidateContent(job.content); err != nil {
		log.Warn("rejected oversized entry", "length", len(job.content))
		e.journal.SetAutosaveStatus(domain.AutosaveStatus{
			State:   domain.AutosaveError,
			Message: err.Error(),
		})
		return err
	}

	e.journal.SetAutosaveStatus(domain.AutosaveStatus{State: domain.AutosaveSaving})

	path := domain.JournalPath(e.userID, job.entryID)
	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		lastErr = e.put(ctx, path, job)
		if lastErr == nil {
			savedAt := e.now()
			e.journal.ApplySaved(job.entryID, savedAt)
			e.journal.SetAutosaveStatus(domain.AutosaveStatus{
				State:     domain.AutosaveSaved,
				LastSaved: savedAt,
			})
			log.Info("entry saved", "attempt", attempt)
			return nil
		}

		log.Warn("save attempt failed", "attempt", attempt, "error", lastErr)
		if attempt == e.opts.MaxAttempts {
			break
		}

		e.journal.SetAutosaveStatus(domain.AutosaveStatus{
			State:   domain.AutosaveSaving,
			Message: fmt.Sprintf("retrying save (%d/%d)", attempt, e.opts.MaxAttempts),
		})

		select {
		case <-time.After(e.opts.RetryDelay):
		case <-e.done:
			return lastErr
		}
	}

	log.Error("entry save failed", "error", lastErr)
	e.journal.SetAutosaveStatus(domain.AutosaveStatus{
		State:   domain.AutosaveError,
		Message: "failed to save after multiple attempts",
	})
	return lastErr
}

func (e *Engine) put(ctx context.Context, path string, job saveJob) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	payload := journalPayload{
		ID:        job.entryID,
		Content:   job.content,
		UpdatedAt: e.now(),
	}
	return e.blob.Put(ctx, path, payload)
}
