// Package backend is a reference implementation of the quiz API the client
// engine talks to. It backs `quiz-client serve` and the end-to-end tests.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-client/internal/domain"
)

// QuizRepository loads quiz content together with its answer key.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.QuizRecord, error)
}

// AttemptStore abstracts where attempts live (in-memory, Redis).
type AttemptStore interface {
	Get(ctx context.Context, userID string, quizID int64) (domain.Attempt, error)
	Put(ctx context.Context, attempt domain.Attempt) error
}

type Options struct {
	// PassPercent is the share of correct answers needed to pass, 0-100.
	PassPercent  int
	Now          func() time.Time
	NewSessionID func() string
	Logger       *log.Logger
}

// Service contains the reference quiz use cases.
type Service struct {
	quizzes  QuizRepository
	attempts AttemptStore
	opts     Options

	// mu serializes read-modify-write cycles on attempts.
	mu sync.Mutex
}

func NewService(quizzes QuizRepository, attempts AttemptStore, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.PassPercent < 0 || opts.PassPercent > 100 {
		opts.PassPercent = 50
	}
	return &Service{quizzes: quizzes, attempts: attempts, opts: opts}
}

// Start opens an attempt for userID, or returns the open one unchanged so
// the client can resume it. A completed attempt is refused.
func (s *Service) Start(ctx context.Context, userID string, quizID int64) (domain.StartResponse, error) {
	record, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.StartResponse{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	attempt, err := s.attempts.Get(ctx, userID, quizID)
	switch {
	case err == nil && attempt.Completed:
		return domain.StartResponse{}, domain.ErrAttemptClosed
	case err == nil:
		// resume
	case errors.Is(err, domain.ErrAttemptNotFound):
		attempt = domain.Attempt{
			QuizID:    quizID,
			UserID:    userID,
			SessionID: s.opts.NewSessionID(),
			StartedAt: now,
			Answers:   make(map[int64]int64),
		}
		if record.Quiz.TimeLimit > 0 {
			attempt.ExpiresAt = now.Add(time.Duration(record.Quiz.TimeLimit) * time.Minute)
		}
		if err := s.attempts.Put(ctx, attempt); err != nil {
			return domain.StartResponse{}, fmt.Errorf("store attempt: %w", err)
		}
		s.opts.Logger.Printf("backend: user %s started quiz %d (session %s)", userID, quizID, attempt.SessionID)
	default:
		return domain.StartResponse{}, err
	}

	quiz := record.Quiz
	return domain.StartResponse{
		OK:      true,
		Quiz:    &quiz,
		Session: descriptor(attempt, now),
	}, nil
}

// Confirm records the acknowledged answer for one question. A nil answer
// clears any earlier acknowledgment.
func (s *Service) Confirm(ctx context.Context, userID string, quizID int64, req domain.AnswerConfirmation) error {
	record, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, err := s.openAttempt(ctx, userID, quizID, req.SessionID)
	if err != nil {
		return err
	}
	question, err := findQuestion(record.Quiz, req.QuestionID)
	if err != nil {
		return err
	}
	if req.AnswerID == nil {
		delete(attempt.Answers, req.QuestionID)
	} else {
		if !question.HasAnswer(*req.AnswerID) {
			return domain.ErrOptionNotFound
		}
		attempt.Answers[req.QuestionID] = *req.AnswerID
	}
	return s.attempts.Put(ctx, attempt)
}

// Submit applies the submitted answers over acknowledged ones, scores every
// question against the key and closes the attempt. An entry in the payload
// always wins, null included; questions the payload leaves out keep their
// acknowledged answer. Submissions arriving
// after expiry are accepted and logged; timeout submits always land late.
func (s *Service) Submit(ctx context.Context, userID string, quizID int64, sub domain.Submission) (domain.Result, error) {
	record, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, err := s.openAttempt(ctx, userID, quizID, sub.SessionID)
	if err != nil {
		return domain.Result{}, err
	}

	for _, a := range sub.Answers {
		question, err := findQuestion(record.Quiz, a.QuestionID)
		if err != nil {
			return domain.Result{}, err
		}
		if a.AnswerID == nil {
			delete(attempt.Answers, a.QuestionID)
			continue
		}
		if !question.HasAnswer(*a.AnswerID) {
			return domain.Result{}, domain.ErrOptionNotFound
		}
		attempt.Answers[a.QuestionID] = *a.AnswerID
	}

	result := scoreAttempt(record, attempt.Answers, s.opts.PassPercent)
	attempt.Completed = true
	attempt.Score = result.Score
	attempt.Total = result.Total
	if err := s.attempts.Put(ctx, attempt); err != nil {
		return domain.Result{}, fmt.Errorf("store attempt: %w", err)
	}

	late := ""
	if !attempt.ExpiresAt.IsZero() && s.opts.Now().After(attempt.ExpiresAt) {
		late = " (after expiry)"
	}
	s.opts.Logger.Printf("backend: user %s submitted quiz %d: %d/%d%s", userID, quizID, result.Score, result.Total, late)
	return result, nil
}

func (s *Service) openAttempt(ctx context.Context, userID string, quizID int64, sessionID string) (domain.Attempt, error) {
	attempt, err := s.attempts.Get(ctx, userID, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.Completed {
		return domain.Attempt{}, domain.ErrAttemptClosed
	}
	if sessionID != "" && sessionID != attempt.SessionID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if attempt.Answers == nil {
		attempt.Answers = make(map[int64]int64)
	}
	return attempt, nil
}

func descriptor(a domain.Attempt, now time.Time) *domain.SessionDescriptor {
	startMs := a.StartedAt.UnixMilli()
	nowMs := now.UnixMilli()
	d := &domain.SessionDescriptor{
		SessionID:   a.SessionID,
		StartAtMs:   &startMs,
		ServerNowMs: &nowMs,
	}
	if !a.ExpiresAt.IsZero() {
		expMs := a.ExpiresAt.UnixMilli()
		d.ExpiresAtMs = &expMs
	}
	return d
}

func findQuestion(quiz domain.Quiz, questionID int64) (domain.Question, error) {
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// scoreAttempt awards one point per question whose answer matches the key.
func scoreAttempt(record domain.QuizRecord, answers map[int64]int64, passPercent int) domain.Result {
	result := domain.Result{Total: len(record.Quiz.Questions)}
	for _, q := range record.Quiz.Questions {
		correct, ok := record.Key[q.ID]
		if !ok {
			continue
		}
		if chosen, answered := answers[q.ID]; answered && chosen == correct {
			result.Score++
		}
	}
	passed := result.Score*100 >= result.Total*passPercent
	result.Passed = &passed
	return result
}
