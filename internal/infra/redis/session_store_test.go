package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute, "alice")

	if _, ok, err := store.Get(ctx, "quiz_session_1"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "quiz_session_1", []byte(`{"quizID":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("quiz-client:alice:quiz_session_1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz-client:alice:quiz_session_1"); ttl != time.Minute {
		t.Fatalf("expected ttl of one minute, got %s", ttl)
	}

	got, ok, err := store.Get(ctx, "quiz_session_1")
	if err != nil || !ok || string(got) != `{"quizID":1}` {
		t.Fatalf("unexpected get result %q ok=%v err=%v", got, ok, err)
	}

	if err := store.Delete(ctx, "quiz_session_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("quiz-client:alice:quiz_session_1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestSessionStoreSurfacesConnectionErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := NewSessionStore(client, time.Minute, "")
	mr.Close()

	if err := store.Set(context.Background(), "quiz_session_1", []byte(`{}`)); err == nil {
		t.Fatalf("expected error once redis is gone")
	}
}
