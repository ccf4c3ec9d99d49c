package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "profile")
	store, err := NewSessionStore(dir)
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, "quiz_session_3")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "quiz_session_3", []byte(`{"quizID":3}`)))
	require.FileExists(t, filepath.Join(dir, "quiz_session_3.json"))

	raw, ok, err := store.Get(ctx, "quiz_session_3")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"quizID":3}`, string(raw))

	require.NoError(t, store.Set(ctx, "quiz_session_3", []byte(`{"quizID":3,"currentIndex":1}`)))
	raw, _, _ = store.Get(ctx, "quiz_session_3")
	require.JSONEq(t, `{"quizID":3,"currentIndex":1}`, string(raw))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, store.Delete(ctx, "quiz_session_3"))
	require.NoError(t, store.Delete(ctx, "quiz_session_3"))
	_, ok, _ = store.Get(ctx, "quiz_session_3")
	require.False(t, ok)
}

func TestSessionStoreSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSessionStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), "../escape", []byte(`{}`)))
	require.FileExists(t, filepath.Join(dir, ".._escape.json"))
}
