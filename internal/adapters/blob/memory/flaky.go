package memory

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is returned by FlakyStore for scripted failures.
var ErrInjected = errors.New("injected blob store failure")

// FlakyStore wraps a Store and fails a scripted number of operations, for
// exercising retry and degradation paths in tests and local fault drills.
type FlakyStore struct {
	*Store

	mu       sync.Mutex
	failPuts int
	failGets int
	puts     int
	gets     int
}

func NewFlakyStore() *FlakyStore {
	return &FlakyStore{Store: NewStore()}
}

// FailPuts makes the next n Put calls fail.
func (s *FlakyStore) FailPuts(n int) {
	s.mu.Lock()
	s.failPuts = n
	s.mu.Unlock()
}

// FailGets makes the next n Get calls fail.
func (s *FlakyStore) FailGets(n int) {
	s.mu.Lock()
	s.failGets = n
	s.mu.Unlock()
}

// PutCalls reports how many Put calls were attempted, failed ones included.
func (s *FlakyStore) PutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *FlakyStore) Put(ctx context.Context, path string, value any) error {
	s.mu.Lock()
	s.puts++
	if s.failPuts > 0 {
		s.failPuts--
		s.mu.Unlock()
		return ErrInjected
	}
	s.mu.Unlock()
	return s.Store.Put(ctx, path, value)
}

func (s *FlakyStore) Get(ctx context.Context, path string, out any) (bool, error) {
	s.mu.Lock()
	s.gets++
	if s.failGets > 0 {
		s.failGets--
		s.mu.Unlock()
		return false, ErrInjected
	}
	s.mu.Unlock()
	return s.Store.Get(ctx, path, out)
}
