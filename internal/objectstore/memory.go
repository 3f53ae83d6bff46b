package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"xsync-go/internal/xsync"
)

// MemoryStore keeps objects in a map. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// failDelete makes Delete fail for the listed names; tests use it to
	// exercise garbage collection error paths.
	failDelete map[string]error
}

var _ xsync.ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), failDelete: make(map[string]error)}
}

func (s *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = bytes.Clone(data)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	return bytes.Clone(data), nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failDelete[name]; ok {
		return err
	}
	delete(s.objects, name)
	return nil
}

func (s *MemoryStore) DeleteMany(ctx context.Context, names []string) map[string]error {
	return deleteEach(names, func(name string) error { return s.Delete(ctx, name) })
}

func (s *MemoryStore) ValidateSetup(context.Context) error { return nil }

// Has reports whether name is stored.
func (s *MemoryStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[name]
	return ok
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// FailDeletes makes later deletes of name return err. A nil err clears it.
func (s *MemoryStore) FailDeletes(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failDelete, name)
		return
	}
	s.failDelete[name] = err
}

// Corrupt overwrites a stored object in place.
func (s *MemoryStore) Corrupt(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = bytes.Clone(data)
}
