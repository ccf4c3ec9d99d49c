package memory

import (
	"context"
	"sync"
)

// SessionStore is an in-memory implementation of app.KVStore.
type SessionStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		docs: make(map[string][]byte),
	}
}

func (s *SessionStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), doc...), true, nil
}

func (s *SessionStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte(nil), value...)
	return nil
}

func (s *SessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil
}

// Len is the number of stored documents.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
