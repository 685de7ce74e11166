package state_test

import (
	"testing"
	"time"

	"github.com/quietpage/quietpage/internal/domain"
	"github.com/quietpage/quietpage/internal/state"
)

func session(id, title string) domain.ChatSession {
	now := time.Now()
	return domain.ChatSession{ID: domain.ChatID(id), Title: title, CreatedAt: now, UpdatedAt: now}
}

func TestHistoryAddPrependsAndTracksLastAccessed(t *testing.T) {
	s := state.NewHistory()
	s.Add(session("s1", "first"))
	s.Add(session("s2", "second"))

	sessions := s.Sessions()
	if len(sessions) != 2 || sessions[0].ID != "s2" {
		t.Fatalf("expected s2 first, got %+v", sessions)
	}
	if s.LastAccessedID() != "s2" {
		t.Fatalf("expected last accessed s2, got %s", s.LastAccessedID())
	}
}

func TestHistoryUpdatePartialFields(t *testing.T) {
	s := state.NewHistory()
	s.Add(session("s1", "first"))

	title := "renamed"
	count := 7
	at := time.Unix(500, 0)
	if !s.Update("s1", state.SessionUpdate{Title: &title, MessageCount: &count}, at) {
		t.Fatal("update of existing session should succeed")
	}
	if s.Update("nope", state.SessionUpdate{Title: &title}, at) {
		t.Fatal("update of unknown session should report false")
	}

	sess, ok := s.Get("s1")
	if !ok {
		t.Fatal("s1 missing")
	}
	if sess.Title != "renamed" || sess.MessageCount != 7 {
		t.Fatalf("partial update not applied: %+v", sess)
	}
	if !sess.UpdatedAt.Equal(at) {
		t.Fatalf("UpdatedAt not touched: %v", sess.UpdatedAt)
	}
}

func TestHistoryDeleteFallsBackLastAccessed(t *testing.T) {
	s := state.NewHistory()
	s.Add(session("s1", "first"))
	s.Add(session("s2", "second")) // becomes last accessed and head

	if !s.Delete("s2") {
		t.Fatal("delete of existing session should succeed")
	}
	if s.LastAccessedID() != "s1" {
		t.Fatalf("expected fallback to s1, got %q", s.LastAccessedID())
	}

	if !s.Delete("s1") {
		t.Fatal("delete of s1 should succeed")
	}
	if s.LastAccessedID() != "" {
		t.Fatalf("expected empty last accessed, got %q", s.LastAccessedID())
	}
	if len(s.Sessions()) != 0 {
		t.Fatal("expected empty index")
	}
}
