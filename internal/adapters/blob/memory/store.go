package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

var null = []byte("null")

// Store is a simple in-memory implementation of domain.BlobStore. It is NOT
// persistent and is only suitable for development / local mode and tests.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewStore() *Store {
	return &Store{
		blobs: make(map[string][]byte),
	}
}

func (s *Store) Put(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory blob put %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = data
	return nil
}

func (s *Store) Get(ctx context.Context, path string, out any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	data, ok := s.blobs[path]
	s.mu.RUnlock()

	if !ok || bytes.Equal(data, null) {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("memory blob get %s: %w", path, err)
	}
	return true, nil
}

// Raw returns the stored bytes for a path, for tests that assert on exactly
// what was written.
func (s *Store) Raw(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[path]
	return data, ok
}
