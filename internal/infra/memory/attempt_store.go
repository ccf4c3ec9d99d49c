package memory

import (
	"context"
	"sync"

	"quiz-client/internal/domain"
)

type attemptKey struct {
	userID string
	quizID int64
}

// AttemptStore keeps reference-API attempts in process memory.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[attemptKey]domain.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[attemptKey]domain.Attempt)}
}

func (s *AttemptStore) Get(_ context.Context, userID string, quizID int64) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[attemptKey{userID, quizID}]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (s *AttemptStore) Put(_ context.Context, a domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attemptKey{a.UserID, a.QuizID}] = cloneAttempt(a)
	return nil
}

func cloneAttempt(a domain.Attempt) domain.Attempt {
	answers := make(map[int64]int64, len(a.Answers))
	for q, ans := range a.Answers {
		answers[q] = ans
	}
	a.Answers = answers
	return a
}
