package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-client/internal/domain"
)

// AttemptStore keeps reference-API attempts as JSON under attempt:{quizID}:{userID}.
// Completed attempts are kept for retention so a re-start is refused.
type AttemptStore struct {
	client    *redis.Client
	retention time.Duration
}

func NewAttemptStore(client *redis.Client, retention time.Duration) *AttemptStore {
	return &AttemptStore{client: client, retention: retention}
}

func (s *AttemptStore) Get(ctx context.Context, userID string, quizID int64) (domain.Attempt, error) {
	raw, err := s.client.Get(ctx, attemptKey(userID, quizID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	var a domain.Attempt
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.Attempt{}, fmt.Errorf("decode attempt: %w", err)
	}
	if a.Answers == nil {
		a.Answers = make(map[int64]int64)
	}
	return a, nil
}

func (s *AttemptStore) Put(ctx context.Context, a domain.Attempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	return s.client.Set(ctx, attemptKey(a.UserID, a.QuizID), raw, s.retention).Err()
}

func attemptKey(userID string, quizID int64) string {
	return "attempt:" + strconv.FormatInt(quizID, 10) + ":" + userID
}
