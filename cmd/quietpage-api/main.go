package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/quietpage/quietpage/internal/adapters/blob/badgerdb"
	"github.com/quietpage/quietpage/internal/adapters/blob/disk"
	firestoreblob "github.com/quietpage/quietpage/internal/adapters/blob/firestore"
	memblob "github.com/quietpage/quietpage/internal/adapters/blob/memory"
	httpadapter "github.com/quietpage/quietpage/internal/adapters/http"
	"github.com/quietpage/quietpage/internal/adapters/llm"
	"github.com/quietpage/quietpage/internal/config"
	"github.com/quietpage/quietpage/internal/domain"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	// Blob store backend
	var blob domain.BlobStore

	switch cfg.StorageBackend {
	case config.BackendFirestore:
		log.Printf("[STORE] Using Firestore blob store (project=%s)", cfg.GCPProjectID)
		fsStore, err := firestoreblob.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			log.Fatalf("error initializing Firestore store: %v", err)
		}
		defer fsStore.Close()
		blob = fsStore

	case config.BackendBadger:
		dir := expandHome(cfg.DataDir)
		log.Printf("[STORE] Using Badger blob store (dir=%s)", dir)
		bStore, err := badgerdb.NewStore(dir)
		if err != nil {
			log.Fatalf("error initializing Badger store: %v", err)
		}
		defer bStore.Close()
		blob = bStore

	case config.BackendDisk:
		dir := expandHome(cfg.DataDir)
		log.Printf("[STORE] Using disk blob store (dir=%s)", dir)
		dStore, err := disk.NewStore(dir)
		if err != nil {
			log.Fatalf("error initializing disk store: %v", err)
		}
		blob = dStore

	default:
		log.Println("[STORE] Using in-memory blob store")
		blob = memblob.NewStore()
	}

	// Reply client: mock or Vertex
	var reply domain.ReplyClient
	if cfg.UseMockLLM {
		log.Println("[LLM] Using mock reply client")
		reply = llm.NewMockClient()
	} else {
		log.Println("[LLM] Using Vertex reply client")
		reply, err = llm.NewVertexClient(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
		if err != nil {
			log.Fatalf("error initializing Vertex reply client: %v", err)
		}
	}

	handler, srv := httpadapter.NewServer(blob, reply, cfg)
	defer srv.Close()

	addr := ":" + cfg.Port
	log.Println("quietpage API listening on", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
