package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quietpage/quietpage/internal/adapters/blob/memory"
	"github.com/quietpage/quietpage/internal/adapters/llm"
	"github.com/quietpage/quietpage/internal/app/chat"
	"github.com/quietpage/quietpage/internal/app/history"
	"github.com/quietpage/quietpage/internal/domain"
	"github.com/quietpage/quietpage/internal/state"
)

const (
	testUser = domain.UserID("test-user")
	testChat = domain.ChatID("chat-1")
)

// brokenReply always fails, standing in for an unreachable AI endpoint.
type brokenReply struct{}

func (brokenReply) GenerateReply(ctx context.Context, req domain.ReplyRequest) (string, error) {
	return "", errors.New("reply service unavailable")
}

func testOptions() chat.Options {
	return chat.Options{
		ChatID:        testChat,
		FlushInterval: time.Hour, // keep the ticker out of timing-sensitive tests
	}
}

func newTestEngine(t *testing.T, reply domain.ReplyClient, opts chat.Options) (*chat.Engine, *memory.FlakyStore, *state.Chat) {
	t.Helper()
	blob := memory.NewFlakyStore()
	store := state.NewChat()
	eng := chat.New(blob, reply, store, testUser, opts)
	t.Cleanup(eng.Close)
	return eng, blob, store
}

func remoteMessages(t *testing.T, blob *memory.FlakyStore, chatID domain.ChatID) []domain.ChatMessage {
	t.Helper()
	var msgs []domain.ChatMessage
	found, err := blob.Get(context.Background(), domain.MessagesPath(testUser, chatID), &msgs)
	if err != nil {
		t.Fatalf("reading remote messages: %v", err)
	}
	if !found {
		return nil
	}
	return msgs
}

func TestBootstrapRestoresPriorMessages(t *testing.T) {
	blob := memory.NewFlakyStore()
	prior := []domain.ChatMessage{
		{ID: "m1", Role: domain.RoleUser, Content: "hi", Timestamp: time.Unix(1, 0)},
		{ID: "m2", Role: domain.RoleAssistant, Content: "hello", Timestamp: time.Unix(2, 0)},
	}
	if err := blob.Put(context.Background(), domain.MessagesPath(testUser, testChat), prior); err != nil {
		t.Fatalf("seeding blob: %v", err)
	}

	store := state.NewChat()
	eng := chat.New(blob, llm.NewMockClient(), store, testUser, testOptions())
	t.Cleanup(eng.Close)
	eng.Start(context.Background())

	msgs := store.Messages()
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("prior messages not restored: %+v", msgs)
	}
	if eng.LastError() != nil {
		t.Fatalf("unexpected error: %v", eng.LastError())
	}
}

func TestBootstrapFailureIsNonFatal(t *testing.T) {
	eng, blob, store := newTestEngine(t, llm.NewMockClient(), testOptions())
	blob.FailGets(1)
	eng.Start(context.Background())

	if eng.LastError() == nil {
		t.Fatal("load failure should be recorded")
	}
	if len(store.Messages()) != 0 {
		t.Fatal("session should proceed empty")
	}

	// The session stays usable.
	if _, _, err := eng.SendMessage(context.Background(), "still works"); err != nil {
		t.Fatalf("send after degraded load failed: %v", err)
	}
}

func TestBootstrapSeedsInitialMessages(t *testing.T) {
	opts := testOptions()
	opts.InitialMessages = []domain.ChatMessage{
		{ID: "seed", Role: domain.RoleAssistant, Content: "carried over", Timestamp: time.Unix(1, 0)},
	}
	eng, _, store := newTestEngine(t, llm.NewMockClient(), opts)
	eng.Start(context.Background())

	msgs := store.Messages()
	if len(msgs) != 1 || msgs[0].ID != "seed" {
		t.Fatalf("initial messages not seeded: %+v", msgs)
	}
}

func TestBootstrapSeedsWelcomeMessage(t *testing.T) {
	opts := testOptions()
	opts.WelcomeMessage = "What would you like to start with?"
	eng, _, store := newTestEngine(t, llm.NewMockClient(), opts)
	eng.Start(context.Background())

	msgs := store.Messages()
	if len(msgs) != 1 || msgs[0].Role != domain.RoleAssistant {
		t.Fatalf("welcome message not seeded: %+v", msgs)
	}
	if eng.PendingCount() != 1 {
		t.Fatalf("welcome message should await flush, pending=%d", eng.PendingCount())
	}
}

func TestSendAppendsOptimisticallyAndGetsReply(t *testing.T) {
	eng, _, store := newTestEngine(t, llm.NewMockClient(), testOptions())
	eng.Start(context.Background())

	userMsg, assistantMsg, err := eng.SendMessage(context.Background(), "rough day")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if userMsg == nil || assistantMsg == nil {
		t.Fatal("expected both messages")
	}

	msgs := store.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Fatalf("wrong roles: %+v", msgs)
	}
	if msgs[0].ID == msgs[1].ID {
		t.Fatal("messages share an identifier")
	}
}

func TestReplyFailureKeepsUserMessage(t *testing.T) {
	eng, _, store := newTestEngine(t, brokenReply{}, testOptions())
	eng.Start(context.Background())

	userMsg, assistantMsg, err := eng.SendMessage(context.Background(), "anyone there?")
	if err == nil {
		t.Fatal("expected reply error")
	}
	if assistantMsg != nil {
		t.Fatal("no assistant message expected")
	}
	if userMsg == nil {
		t.Fatal("user message should be returned")
	}

	msgs := store.Messages()
	if len(msgs) != 1 || msgs[0].Role != domain.RoleUser {
		t.Fatalf("user message lost: %+v", msgs)
	}
	if eng.LastError() == nil {
		t.Fatal("reply failure should be recorded")
	}

	// Sending again just works.
	if _, _, err := eng.SendMessage(context.Background(), "retrying"); err == nil {
		t.Fatal("still broken reply should fail again")
	}
	if got := len(store.Messages()); got != 2 {
		t.Fatalf("expected 2 user messages after resend, got %d", got)
	}
}

func TestBatchThresholdTriggersSingleFlush(t *testing.T) {
	// A broken reply queues exactly one message per send, making the
	// threshold arithmetic exact.
	eng, blob, store := newTestEngine(t, brokenReply{}, testOptions())
	eng.Start(context.Background())

	for i := 0; i < chat.DefaultBatchThreshold-1; i++ {
		eng.SendMessage(context.Background(), "msg")
	}
	if got := blob.PutCalls(); got != 0 {
		t.Fatalf("flush fired below the threshold: %d writes", got)
	}

	eng.SendMessage(context.Background(), "tips it over")
	if got := blob.PutCalls(); got != 1 {
		t.Fatalf("expected exactly one flush at the threshold, got %d", got)
	}
	if eng.PendingCount() != 0 {
		t.Fatalf("queue should drain after flush, pending=%d", eng.PendingCount())
	}

	remote := remoteMessages(t, blob, testChat)
	local := store.Messages()
	if len(remote) != len(local) {
		t.Fatalf("remote snapshot mismatch: %d vs %d", len(remote), len(local))
	}
}

func TestFlushWritesPrefixConsistentSnapshot(t *testing.T) {
	eng, blob, store := newTestEngine(t, llm.NewMockClient(), testOptions())
	eng.Start(context.Background())

	eng.SendMessage(context.Background(), "first")
	if err := eng.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	remote := remoteMessages(t, blob, testChat)
	local := store.Messages()
	if len(remote) != 2 {
		t.Fatalf("expected user+assistant remotely, got %d", len(remote))
	}
	for i, m := range remote {
		if m.ID != local[i].ID {
			t.Fatalf("remote is not a prefix of local at %d: %s vs %s", i, m.ID, local[i].ID)
		}
	}

	// More local messages do not appear remotely until the next flush.
	eng.SendMessage(context.Background(), "second")
	remote = remoteMessages(t, blob, testChat)
	if len(remote) != 2 {
		t.Fatalf("remote advanced without a flush: %d", len(remote))
	}
}

func TestFailedFlushKeepsQueue(t *testing.T) {
	eng, blob, _ := newTestEngine(t, brokenReply{}, testOptions())
	eng.Start(context.Background())

	eng.SendMessage(context.Background(), "queued")
	blob.FailPuts(1)
	if err := eng.Flush(context.Background()); err == nil {
		t.Fatal("expected flush failure")
	}
	if eng.PendingCount() != 1 {
		t.Fatalf("failed flush dropped messages, pending=%d", eng.PendingCount())
	}

	if err := eng.Flush(context.Background()); err != nil {
		t.Fatalf("second flush failed: %v", err)
	}
	if eng.PendingCount() != 0 {
		t.Fatalf("queue should drain, pending=%d", eng.PendingCount())
	}
	if got := remoteMessages(t, blob, testChat); len(got) != 1 {
		t.Fatalf("expected 1 remote message, got %d", len(got))
	}
}

func TestPeriodicFlush(t *testing.T) {
	opts := testOptions()
	opts.FlushInterval = 20 * time.Millisecond
	eng, blob, _ := newTestEngine(t, brokenReply{}, opts)
	eng.Start(context.Background())

	eng.SendMessage(context.Background(), "left in the queue")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(remoteMessages(t, blob, testChat)) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("interval flush never fired")
}

func TestResetClearsLocalAndRemote(t *testing.T) {
	eng, blob, store := newTestEngine(t, llm.NewMockClient(), testOptions())
	eng.Start(context.Background())

	eng.SendMessage(context.Background(), "to be forgotten")
	if err := eng.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if err := eng.Reset(context.Background()); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if len(store.Messages()) != 0 {
		t.Fatal("local messages survived reset")
	}
	if got := remoteMessages(t, blob, testChat); len(got) != 0 {
		t.Fatalf("remote messages survived reset: %d", len(got))
	}
	if eng.PendingCount() != 0 {
		t.Fatal("queue survived reset")
	}
}

func TestCloseFlushesRemainingQueue(t *testing.T) {
	blob := memory.NewFlakyStore()
	store := state.NewChat()
	eng := chat.New(blob, llm.NewMockClient(), store, testUser, testOptions())
	eng.Start(context.Background())

	eng.SendMessage(context.Background(), "almost lost")
	if got := len(remoteMessages(t, blob, testChat)); got != 0 {
		t.Fatalf("unexpected early flush: %d", got)
	}

	eng.Close()
	if got := len(remoteMessages(t, blob, testChat)); got != 2 {
		t.Fatalf("final flush missing messages: %d", got)
	}
}

func TestFlushTouchesSessionSummary(t *testing.T) {
	blob := memory.NewFlakyStore()
	store := state.NewChat()
	historyStore := state.NewHistory()
	mgr := history.NewManager(blob, historyStore, testUser)

	if _, err := mgr.Add(context.Background(), history.NewSessionInput{ID: testChat, Title: "Morning reflection"}); err != nil {
		t.Fatalf("adding session: %v", err)
	}

	eng := chat.New(blob, llm.NewMockClient(), store, testUser, testOptions())
	eng.SetHistory(mgr)
	t.Cleanup(eng.Close)
	eng.Start(context.Background())

	eng.SendMessage(context.Background(), "good morning")
	if err := eng.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	sess, ok := historyStore.Get(testChat)
	if !ok {
		t.Fatal("session missing")
	}
	if sess.MessageCount != 2 {
		t.Fatalf("summary not re-touched: count=%d", sess.MessageCount)
	}
	if sess.LastMessage == "" {
		t.Fatal("last message preview missing")
	}
	newest := store.Messages()[1].Timestamp
	if sess.UpdatedAt.Before(newest) {
		t.Fatalf("summary UpdatedAt %v behind newest message %v", sess.UpdatedAt, newest)
	}
}
