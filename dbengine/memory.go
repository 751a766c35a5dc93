package dbengine

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the in-memory DocumentStore used by tests and dry-run
// rehearsals against fixture data.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string][]Document
	commands    []Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Document)}
}

// Seed replaces a collection's contents.
func (s *MemoryStore) Seed(collection string, docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append([]Document(nil), docs...)
}

func (s *MemoryStore) Collections(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) ReadAll(_ context.Context, collection string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Document(nil), s.collections[collection]...), nil
}

func (s *MemoryStore) Drop(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

func (s *MemoryStore) Insert(_ context.Context, collection string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], docs...)
	return nil
}

func (s *MemoryStore) RunCommand(_ context.Context, command Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, command)
	return nil
}

// Commands returns the database commands run so far, in order.
func (s *MemoryStore) Commands() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Document(nil), s.commands...)
}
