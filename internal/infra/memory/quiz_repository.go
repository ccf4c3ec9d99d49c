package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-client/internal/domain"
)

// QuizLoader fetches quiz records from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.QuizRecord, error)
}

// QuizRepository caches quiz records with TTL to avoid repeated DB hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[int64]cachedQuiz
}

type cachedQuiz struct {
	record    domain.QuizRecord
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.QuizRecord, error) {
	if record, ok := r.cached(quizID); ok {
		return record, nil
	}

	result, err, _ := r.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		if record, ok := r.cached(quizID); ok {
			return record, nil
		}

		record, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizRecord{}, err
		}

		r.mu.Lock()
		r.cache[quizID] = cachedQuiz{
			record:    record,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return record, nil
	})
	if err != nil {
		return domain.QuizRecord{}, err
	}
	return result.(domain.QuizRecord), nil
}

func (r *QuizRepository) cached(quizID int64) (domain.QuizRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.QuizRecord{}, false
	}
	return entry.record, true
}

// ttlWithJitterLocked adds up to 10% jitter to spread expirations.
func (r *QuizRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader serves records from a map (tests, demos and `serve --demo`).
type StaticQuizLoader struct {
	records map[int64]domain.QuizRecord
}

func NewStaticQuizLoader(records ...domain.QuizRecord) *StaticQuizLoader {
	l := &StaticQuizLoader{records: make(map[int64]domain.QuizRecord, len(records))}
	for _, rec := range records {
		l.records[rec.Quiz.ID] = rec
	}
	return l
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID int64) (domain.QuizRecord, error) {
	if rec, ok := l.records[quizID]; ok {
		return rec, nil
	}
	return domain.QuizRecord{}, domain.ErrQuizNotFound
}

// DemoQuiz is the quiz served by `serve` when no Postgres is configured.
func DemoQuiz() domain.QuizRecord {
	return domain.QuizRecord{
		Quiz: domain.Quiz{
			ID:          1,
			Title:       "Go basics",
			Description: "A short warm-up.",
			TimeLimit:   2,
			Questions: []domain.Question{
				{
					ID:    1,
					Title: "Which keyword starts a goroutine?",
					Answers: []domain.Answer{
						{ID: 1, Text: "go"},
						{ID: 2, Text: "async"},
						{ID: 3, Text: "spawn"},
					},
				},
				{
					ID:    2,
					Title: "What does a nil map read return?",
					Answers: []domain.Answer{
						{ID: 4, Text: "a panic"},
						{ID: 5, Text: "the zero value"},
					},
				},
				{
					ID:    3,
					Title: "Which package provides context cancellation?",
					Answers: []domain.Answer{
						{ID: 6, Text: "sync"},
						{ID: 7, Text: "context"},
						{ID: 8, Text: "runtime"},
					},
				},
			},
		},
		Key: map[int64]int64{1: 1, 2: 5, 3: 7},
	}
}
