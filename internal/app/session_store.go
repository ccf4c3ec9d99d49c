package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"

	"quiz-client/internal/domain"
	"quiz-client/internal/metrics"
)

// KVStore abstracts where session documents live (memory, files, Redis).
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SessionKey is the record key of one quiz's resumable attempt.
func SessionKey(quizID int64) string {
	return "quiz_session_" + strconv.FormatInt(quizID, 10)
}

// LocalSessionStore persists SessionState per quiz. All operations are
// best-effort: failures are logged and the store keeps working in memory
// for the rest of the process instead of returning errors.
type LocalSessionStore struct {
	kv     KVStore
	logger *log.Logger

	mu       sync.Mutex
	degraded bool
	fallback map[string][]byte
}

func NewLocalSessionStore(kv KVStore, logger *log.Logger) *LocalSessionStore {
	if logger == nil {
		logger = log.Default()
	}
	return &LocalSessionStore{
		kv:       kv,
		logger:   logger,
		fallback: make(map[string][]byte),
	}
}

// Load returns the persisted state for quizID. Unparseable documents are
// discarded and reported as absent.
func (s *LocalSessionStore) Load(ctx context.Context, quizID int64) (domain.SessionState, bool) {
	key := SessionKey(quizID)
	raw, ok := s.get(ctx, key)
	if !ok {
		return domain.SessionState{}, false
	}

	var state domain.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Printf("session store: discarding corrupt %s: %v", key, err)
		s.Clear(ctx, quizID)
		return domain.SessionState{}, false
	}
	if state.AnswersMap == nil {
		state.AnswersMap = make(map[int64]*int64)
	}
	return state, true
}

// Save writes state under its quiz key.
func (s *LocalSessionStore) Save(ctx context.Context, state domain.SessionState) {
	key := SessionKey(state.QuizID)
	raw, err := json.Marshal(state)
	if err != nil {
		s.logger.Printf("session store: encode %s: %v", key, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		s.fallback[key] = raw
		return
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		s.degradeLocked("save", key, err)
		s.fallback[key] = raw
	}
}

// Clear removes the persisted state of quizID.
func (s *LocalSessionStore) Clear(ctx context.Context, quizID int64) {
	key := SessionKey(quizID)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fallback, key)
	if s.degraded {
		return
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		s.degradeLocked("clear", key, err)
	}
}

// Degraded reports whether the store fell back to memory.
func (s *LocalSessionStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *LocalSessionStore) get(ctx context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		raw, ok := s.fallback[key]
		return raw, ok
	}
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.degradeLocked("load", key, err)
		return nil, false
	}
	return raw, ok
}

func (s *LocalSessionStore) degradeLocked(op, key string, err error) {
	metrics.StorageErrors.WithLabelValues(op).Inc()
	s.logger.Printf("session store: %v", fmt.Errorf("%w: %s %s: %v", domain.ErrStorageUnavailable, op, key, err))
	if !s.degraded {
		s.logger.Printf("session store: continuing in memory")
	}
	s.degraded = true
}
