package memory

import (
	"context"
	"testing"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if _, ok, _ := store.Get(ctx, "quiz_session_1"); ok {
		t.Fatalf("expected empty store")
	}

	doc := []byte(`{"quizID":1}`)
	if err := store.Set(ctx, "quiz_session_1", doc); err != nil {
		t.Fatalf("set: %v", err)
	}
	doc[0] = 'x'

	got, ok, err := store.Get(ctx, "quiz_session_1")
	if err != nil || !ok {
		t.Fatalf("expected document present, ok=%v err=%v", ok, err)
	}
	if string(got) != `{"quizID":1}` {
		t.Fatalf("store aliased caller buffer: %s", got)
	}

	if err := store.Delete(ctx, "quiz_session_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected document removed")
	}
}
