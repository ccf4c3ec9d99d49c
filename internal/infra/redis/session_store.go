package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps session documents in Redis so an attempt can be resumed
// from any host sharing the same profile. Each write refreshes the TTL.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewSessionStore(client *redis.Client, ttl time.Duration, profile string) *SessionStore {
	prefix := "quiz-client:"
	if profile != "" {
		prefix += profile + ":"
	}
	return &SessionStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
	}
}

func (s *SessionStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *SessionStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *SessionStore) key(key string) string {
	return s.prefix + key
}
