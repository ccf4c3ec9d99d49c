// Package ledger keeps the per-question answer selections of one attempt.
package ledger

import (
	"quiz-client/internal/domain"
)

// Ledger maps every question of the active quiz to a selected answer or to
// the unanswered sentinel (nil). It is not safe for concurrent use; the
// session controller serializes access.
type Ledger struct {
	order    []int64
	answers  map[int64]*int64
	onChange func(map[int64]*int64)
}

// New reconciles prior selections against the question order: known
// answers are kept, new questions start unanswered, and entries for
// questions that no longer exist are dropped.
func New(questionIDs []int64, prior map[int64]*int64) *Ledger {
	l := &Ledger{
		order:   append([]int64(nil), questionIDs...),
		answers: make(map[int64]*int64, len(questionIDs)),
	}
	for _, id := range questionIDs {
		if v, ok := prior[id]; ok && v != nil {
			a := *v
			l.answers[id] = &a
			continue
		}
		l.answers[id] = nil
	}
	return l
}

// OnChange registers the write-through hook fired after every mutation.
func (l *Ledger) OnChange(fn func(map[int64]*int64)) {
	l.onChange = fn
}

// Select records answerID for questionID.
func (l *Ledger) Select(questionID, answerID int64) error {
	if _, ok := l.answers[questionID]; !ok {
		return domain.ErrQuestionNotFound
	}
	a := answerID
	l.answers[questionID] = &a
	l.changed()
	return nil
}

// Clear resets questionID to unanswered.
func (l *Ledger) Clear(questionID int64) error {
	if _, ok := l.answers[questionID]; !ok {
		return domain.ErrQuestionNotFound
	}
	l.answers[questionID] = nil
	l.changed()
	return nil
}

// Selected returns the chosen answer for questionID, if any.
func (l *Ledger) Selected(questionID int64) (int64, bool) {
	v := l.answers[questionID]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Answered reports whether questionID has a selection.
func (l *Ledger) Answered(questionID int64) bool {
	_, ok := l.Selected(questionID)
	return ok
}

// Unanswered lists unanswered questions in definition order.
func (l *Ledger) Unanswered() []int64 {
	var out []int64
	for _, id := range l.order {
		if l.answers[id] == nil {
			out = append(out, id)
		}
	}
	return out
}

// Len is the number of questions tracked.
func (l *Ledger) Len() int { return len(l.order) }

// Snapshot returns a copy of the question -> answer map.
func (l *Ledger) Snapshot() map[int64]*int64 {
	out := make(map[int64]*int64, len(l.answers))
	for id, v := range l.answers {
		if v == nil {
			out[id] = nil
			continue
		}
		a := *v
		out[id] = &a
	}
	return out
}

// Payload builds the submission entries in definition order, nil for unanswered.
func (l *Ledger) Payload() []domain.AnswerSubmission {
	out := make([]domain.AnswerSubmission, 0, len(l.order))
	for _, id := range l.order {
		entry := domain.AnswerSubmission{QuestionID: id}
		if v := l.answers[id]; v != nil {
			a := *v
			entry.AnswerID = &a
		}
		out = append(out, entry)
	}
	return out
}

func (l *Ledger) changed() {
	if l.onChange != nil {
		l.onChange(l.Snapshot())
	}
}
