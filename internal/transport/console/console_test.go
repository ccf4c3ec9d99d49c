package console

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"quiz-client/internal/app"
	"quiz-client/internal/backend"
	"quiz-client/internal/domain"
	"quiz-client/internal/infra/memory"
	transport "quiz-client/internal/transport/http"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newAPI(t *testing.T) app.QuizAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := log.New(io.Discard, "", 0)
	repo := memory.NewQuizRepository(memory.NewStaticQuizLoader(memory.DemoQuiz()), time.Minute)
	svc := backend.NewService(repo, memory.NewAttemptStore(), backend.Options{PassPercent: 50, Logger: logger})
	server := httptest.NewServer(backend.NewHandler(svc).Router(nil))
	t.Cleanup(server.Close)
	return transport.NewClient(server.URL, "carol", time.Second)
}

func run(t *testing.T, api app.QuizAPI, kv *memory.SessionStore, script string) string {
	t.Helper()
	out := &syncBuffer{}
	con := New(strings.NewReader(script), out)
	logger := log.New(io.Discard, "", 0)
	ctrl := app.NewController(api, app.NewLocalSessionStore(kv, logger), con, app.Options{
		ExposePassed: true,
		Logger:       logger,
		Hooks:        con.Hooks(),
	})
	ctx := context.Background()
	require.NoError(t, con.Run(ctx, ctrl, 1))
	ctrl.Close(ctx)
	return out.String()
}

func TestConsoleSubmitsAfterConfirmation(t *testing.T) {
	kv := memory.NewSessionStore()
	out := run(t, newAPI(t), kv, "1\nn\nsubmit\ny\n")

	require.Contains(t, out, "Go basics")
	require.Contains(t, out, "There are 2 unanswered questions. Submit anyway? [y/N]")
	require.Contains(t, out, "Your score: 1/3 (not passed)")
	require.Zero(t, kv.Len())
}

func TestConsoleQuitKeepsProgress(t *testing.T) {
	kv := memory.NewSessionStore()
	api := newAPI(t)
	out := run(t, api, kv, "g 3\ny\n2\nq\n")

	require.Contains(t, out, "You did not answer the current question")
	require.Contains(t, out, "Progress saved")

	out = run(t, api, kv, "v\nq\n")
	require.Contains(t, out, "Question 3/3")
	require.Contains(t, out, "(x) 2. context", "resumed selection is rendered")
}

func TestConsoleRejectsOutOfRangeAnswer(t *testing.T) {
	out := run(t, newAPI(t), memory.NewSessionStore(), "9\nq\n")
	require.Contains(t, out, domain.ErrOptionNotFound.Error())
}
