package ledger

import (
	"errors"
	"testing"

	"quiz-client/internal/domain"
)

func answer(v int64) *int64 { return &v }

func TestNewStartsUnanswered(t *testing.T) {
	l := New([]int64{10, 20, 30}, nil)

	snap := l.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(snap))
	}
	for id, v := range snap {
		if v != nil {
			t.Fatalf("expected question %d unanswered, got %d", id, *v)
		}
	}
	if got := l.Unanswered(); len(got) != 3 || got[0] != 10 || got[2] != 30 {
		t.Fatalf("unexpected unanswered order %v", got)
	}
}

func TestReconcileKeepsPriorAndAddsNew(t *testing.T) {
	prior := map[int64]*int64{1: answer(2), 2: nil, 99: answer(7)}
	l := New([]int64{1, 2, 3}, prior)

	snap := l.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected keys to equal question set, got %v", snap)
	}
	if snap[1] == nil || *snap[1] != 2 {
		t.Fatalf("expected prior answer kept, got %v", snap[1])
	}
	if snap[2] != nil || snap[3] != nil {
		t.Fatalf("expected 2 and 3 unanswered")
	}
	if _, ok := snap[99]; ok {
		t.Fatalf("expected stale question dropped")
	}

	// The ledger must not alias the caller's map.
	*prior[1] = 5
	if got, _ := l.Selected(1); got != 2 {
		t.Fatalf("ledger aliased prior map, got %d", got)
	}
}

func TestSelectWritesThrough(t *testing.T) {
	l := New([]int64{1, 2}, nil)
	var writes []map[int64]*int64
	l.OnChange(func(m map[int64]*int64) { writes = append(writes, m) })

	if err := l.Select(1, 4); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := l.Select(1, 5); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if err := l.Select(3, 1); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if len(writes) != 2 {
		t.Fatalf("expected 2 write-throughs, got %d", len(writes))
	}
	if *writes[1][1] != 5 {
		t.Fatalf("expected latest selection in write-through")
	}

	if err := l.Clear(1); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if l.Answered(1) {
		t.Fatalf("expected cleared answer")
	}
}

func TestPayloadFollowsDefinitionOrder(t *testing.T) {
	l := New([]int64{7, 3, 5}, map[int64]*int64{3: answer(30)})

	payload := l.Payload()
	if len(payload) != 3 {
		t.Fatalf("expected full payload, got %d entries", len(payload))
	}
	want := []int64{7, 3, 5}
	for i, entry := range payload {
		if entry.QuestionID != want[i] {
			t.Fatalf("entry %d: expected question %d, got %d", i, want[i], entry.QuestionID)
		}
	}
	if payload[0].AnswerID != nil || payload[2].AnswerID != nil {
		t.Fatalf("expected nulls for unanswered")
	}
	if payload[1].AnswerID == nil || *payload[1].AnswerID != 30 {
		t.Fatalf("expected answer 30 for question 3")
	}
}
