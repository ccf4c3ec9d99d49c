package domain

import (
	"encoding/json"
	"time"
)

// Answer is one selectable option of a question.
type Answer struct {
	ID   int64  `json:"answerID"`
	Text string `json:"text"`
}

// Question models a single-choice question; answer order is stable for an attempt.
type Question struct {
	ID          int64    `json:"questionID"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Answers     []Answer `json:"answers"`
}

// HasAnswer reports whether answerID belongs to the question.
func (q Question) HasAnswer(answerID int64) bool {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return true
		}
	}
	return false
}

// Quiz is the server-provided quiz definition. TimeLimit is in minutes, 0 means untimed.
type Quiz struct {
	ID          int64      `json:"quizID"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	TimeLimit   int        `json:"timelimit"`
	Questions   []Question `json:"questions"`
}

// QuestionIDs returns question IDs in definition order.
func (q Quiz) QuestionIDs() []int64 {
	ids := make([]int64, 0, len(q.Questions))
	for _, question := range q.Questions {
		ids = append(ids, question.ID)
	}
	return ids
}

// SessionState is the client-owned, persisted state of one attempt.
// Instants are client epoch milliseconds; a nil ExpiresAt means untimed.
// A nil answer means the question is unanswered.
type SessionState struct {
	QuizID       int64            `json:"quizID"`
	SessionID    string           `json:"sessionId,omitempty"`
	StartAt      int64            `json:"startAt,omitempty"`
	ExpiresAt    *int64           `json:"expiresAt,omitempty"`
	AnswersMap   map[int64]*int64 `json:"answersMap"`
	CurrentIndex int              `json:"currentIndex"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s SessionState) Clone() SessionState {
	out := s
	if s.ExpiresAt != nil {
		v := *s.ExpiresAt
		out.ExpiresAt = &v
	}
	out.AnswersMap = make(map[int64]*int64, len(s.AnswersMap))
	for k, v := range s.AnswersMap {
		if v == nil {
			out.AnswersMap[k] = nil
			continue
		}
		a := *v
		out.AnswersMap[k] = &a
	}
	return out
}

// SessionDescriptor carries whatever timing the server chose to send on start.
// StartAt and ExpiresAt may be epoch seconds, epoch milliseconds or calendar strings.
type SessionDescriptor struct {
	SessionID   string          `json:"sessionId,omitempty"`
	StartAt     json.RawMessage `json:"start_at,omitempty"`
	StartAtMs   *int64          `json:"start_at_ms,omitempty"`
	ExpiresAt   json.RawMessage `json:"expires_at,omitempty"`
	ExpiresAtMs *int64          `json:"expires_at_ms,omitempty"`
	ServerNowMs *int64          `json:"server_now_ms,omitempty"`
}

// StartResponse is the body of the start endpoint.
type StartResponse struct {
	OK      bool               `json:"ok"`
	Quiz    *Quiz              `json:"quiz,omitempty"`
	Session *SessionDescriptor `json:"session,omitempty"`
	Message string             `json:"message,omitempty"`
}

// AnswerConfirmation asks the server to acknowledge one question's selection.
type AnswerConfirmation struct {
	QuizID     int64  `json:"-"`
	QuestionID int64  `json:"questionID"`
	AnswerID   *int64 `json:"answerID"`
	SessionID  string `json:"sessionId,omitempty"`
}

// AnswerSubmission is one entry of the final payload; AnswerID is nil when unanswered.
type AnswerSubmission struct {
	QuestionID int64  `json:"questionID"`
	AnswerID   *int64 `json:"answerID"`
}

// Submission is the complete final payload of an attempt.
type Submission struct {
	QuizID    int64              `json:"-"`
	Answers   []AnswerSubmission `json:"answers"`
	SessionID string             `json:"sessionId,omitempty"`
}

// Result is produced once by a successful submission. Passed is only set
// when the deployment exposes pass/fail.
type Result struct {
	Score  int   `json:"score"`
	Total  int   `json:"total"`
	Passed *bool `json:"passed,omitempty"`
}

// PromptKind identifies why the engine needs a yes/no decision.
type PromptKind string

const (
	PromptSkipUnanswered   PromptKind = "skip_unanswered"
	PromptSaveEmpty        PromptKind = "save_empty"
	PromptSubmitUnanswered PromptKind = "submit_unanswered"
)

// Prompt is handed to a confirmation gate.
type Prompt struct {
	Kind       PromptKind `json:"kind"`
	Message    string     `json:"message"`
	Unanswered int        `json:"unanswered,omitempty"`
}

// QuizRecord is the server-side view of a quiz: the definition plus the
// answer key (questionID -> correct answerID). Only the reference API uses it.
type QuizRecord struct {
	Quiz Quiz            `json:"quiz"`
	Key  map[int64]int64 `json:"key"`
}

// Attempt is the reference API's record of one user's pass through a quiz.
type Attempt struct {
	QuizID    int64           `json:"quizId"`
	UserID    string          `json:"userId"`
	SessionID string          `json:"sessionId"`
	StartedAt time.Time       `json:"startedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Answers   map[int64]int64 `json:"answers"`
	Completed bool            `json:"completed"`
	Score     int             `json:"score"`
	Total     int             `json:"total"`
}
