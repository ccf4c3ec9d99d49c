package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-client/internal/domain"
)

// QuizLoader fetches quiz records from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.QuizRecord, error)
}

// QuizRepository caches quiz records in Redis and falls back to a loader on cache miss.
// Content is stored as: SET  quiz:{quizID}:content {quiz json}
// The key is stored as: HSET quiz:{quizID}:answers {questionID} {answerID}
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.QuizRecord, error) {
	if record, ok := r.fromCache(ctx, quizID); ok {
		return record, nil
	}

	result, err, _ := r.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if record, ok := r.fromCache(ctx, quizID); ok {
			return record, nil
		}

		record, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizRecord{}, err
		}
		r.fill(ctx, record)
		return record, nil
	})
	if err != nil {
		return domain.QuizRecord{}, err
	}
	return result.(domain.QuizRecord), nil
}

func (r *QuizRepository) fromCache(ctx context.Context, quizID int64) (domain.QuizRecord, bool) {
	pipe := r.client.Pipeline()
	content := pipe.Get(ctx, contentKey(quizID))
	answers := pipe.HGetAll(ctx, answersKey(quizID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.QuizRecord{}, false
	}

	raw, err := content.Bytes()
	if err != nil {
		return domain.QuizRecord{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.QuizRecord{}, false
	}
	key, ok := parseKey(answers.Val())
	if !ok {
		return domain.QuizRecord{}, false
	}
	return domain.QuizRecord{Quiz: quiz, Key: key}, true
}

// fill is best-effort: a failed write only costs a reload next time.
func (r *QuizRepository) fill(ctx context.Context, record domain.QuizRecord) {
	raw, err := json.Marshal(record.Quiz)
	if err != nil {
		return
	}
	ttl := r.ttlWithJitter()
	cKey, aKey := contentKey(record.Quiz.ID), answersKey(record.Quiz.ID)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, aKey)
	for questionID, answerID := range record.Key {
		pipe.HSet(ctx, aKey, strconv.FormatInt(questionID, 10), answerID)
	}
	pipe.Set(ctx, cKey, raw, ttl)
	if ttl > 0 {
		pipe.Expire(ctx, aKey, ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func parseKey(fields map[string]string) (map[int64]int64, bool) {
	key := make(map[int64]int64, len(fields))
	for q, a := range fields {
		questionID, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			return nil, false
		}
		answerID, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, false
		}
		key[questionID] = answerID
	}
	return key, true
}

func contentKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":content"
}

func answersKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":answers"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
