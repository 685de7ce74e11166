package disk_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/quietpage/quietpage/internal/adapters/blob/disk"
)

type payload struct {
	Name string `json:"name"`
}

func TestRequiresBasePath(t *testing.T) {
	if _, err := disk.NewStore(""); err == nil {
		t.Fatal("empty basePath should be rejected")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store, err := disk.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "users/u1/journals/e1.json", payload{Name: "morning"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var out payload
	found, err := store.Get(ctx, "users/u1/journals/e1.json", &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || out.Name != "morning" {
		t.Fatalf("round trip failed: found=%v out=%+v", found, out)
	}
}

func TestPathMapsToDirectoryTree(t *testing.T) {
	base := t.TempDir()
	store, err := disk.NewStore(base)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.Put(context.Background(), "users/u1/chats/c1/messages.json", payload{Name: "x"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	want := filepath.Join(base, "users", "u1", "chats", "c1", "messages.json")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("blob file not at expected path: %v", err)
	}
}

func TestGetMissingPath(t *testing.T) {
	store, err := disk.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	var out payload
	found, err := store.Get(context.Background(), "users/u1/journals/nope.json", &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("missing blob reported as found")
	}
}

func TestNullBlobReadsAsAbsent(t *testing.T) {
	store, err := disk.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	ctx := context.Background()
	const path = "users/u1/chats/c1/messages.json"

	if err := store.Put(ctx, path, payload{Name: "x"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, path, nil); err != nil {
		t.Fatalf("null Put failed: %v", err)
	}

	var out payload
	found, err := store.Get(ctx, path, &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("nulled blob should read as absent")
	}
}
