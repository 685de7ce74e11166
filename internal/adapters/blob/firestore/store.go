package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var null = []byte("null")

// Store is a domain.BlobStore backed by Firestore. Every blob is one document
// in a single collection; the blob path is kept both as a field and, encoded,
// as the document id (Firestore ids cannot contain slashes).
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore blob store.
// Uses the project passed (QUIETPAGE_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) blobsCol() *firestore.CollectionRef {
	return s.client.Collection("blobs")
}

func (s *Store) blobDoc(path string) *firestore.DocumentRef {
	return s.blobsCol().Doc(encodePath(path))
}

func encodePath(path string) string {
	return base64.URLEncoding.EncodeToString([]byte(path))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type blobDoc struct {
	Path      string    `firestore:"path"`
	Payload   string    `firestore:"payload"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// ─────────────────────────────────────────
// BlobStore implementation
// ─────────────────────────────────────────

func (s *Store) Put(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("firestore blob put %s: %w", path, err)
	}

	doc := blobDoc{
		Path:      path,
		Payload:   string(data),
		UpdatedAt: time.Now(),
	}

	if _, err := s.blobDoc(path).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore blob put %s: %w", path, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string, out any) (bool, error) {
	snap, err := s.blobDoc(path).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("firestore blob get %s: %w", path, err)
	}

	var doc blobDoc
	if err := snap.DataTo(&doc); err != nil {
		return false, fmt.Errorf("firestore blob get %s decode: %w", path, err)
	}

	payload := []byte(doc.Payload)
	if len(payload) == 0 || bytes.Equal(payload, null) {
		return false, nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("firestore blob get %s decode: %w", path, err)
	}
	return true, nil
}

// Ping verifies the collection is reachable. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	iter := s.blobsCol().Limit(1).Documents(ctx)
	defer iter.Stop()

	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}
