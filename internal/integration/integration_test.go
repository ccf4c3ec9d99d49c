package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-client/internal/app"
	"quiz-client/internal/backend"
	"quiz-client/internal/domain"
	"quiz-client/internal/infra/memory"
	pgloader "quiz-client/internal/infra/postgres"
	pgmigrations "quiz-client/internal/infra/postgres/migrations"
	infraredis "quiz-client/internal/infra/redis"
	transport "quiz-client/internal/transport/http"
)

func TestResumeAndSubmitEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, memory.DemoQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	logger := log.New(io.Discard, "", 0)
	gin.SetMode(gin.TestMode)
	service := backend.NewService(
		infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute),
		infraredis.NewAttemptStore(redisClient, time.Hour),
		backend.Options{PassPercent: 60, Logger: logger},
	)
	server := httptest.NewServer(backend.NewHandler(service).Router(nil))
	defer server.Close()

	api := transport.NewClient(server.URL, "dana", 5*time.Second)
	kv := infraredis.NewSessionStore(redisClient, time.Hour, "dana")
	newController := func() *app.Controller {
		return app.NewController(api, app.NewLocalSessionStore(kv, logger), app.AlwaysConfirm, app.Options{
			ExposePassed: true,
			Logger:       logger,
		})
	}

	first := newController()
	if err := first.Start(ctx, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	sessionID := first.View().SessionID
	if sessionID == "" {
		t.Fatalf("expected a server session id")
	}
	if err := first.SelectAnswer(ctx, 1, 1); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := first.ConfirmCurrentQuestion(ctx, false); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := first.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := first.SelectAnswer(ctx, 2, 5); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := first.Abandon(ctx); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	second := newController()
	defer second.Close(ctx)
	if err := second.Start(ctx, 1); err != nil {
		t.Fatalf("resume: %v", err)
	}
	view := second.View()
	if view.SessionID != sessionID || view.CurrentIndex != 1 {
		t.Fatalf("expected resumed session %s at index 1, got %s at %d", sessionID, view.SessionID, view.CurrentIndex)
	}
	if view.Answers[2] == nil || *view.Answers[2] != 5 {
		t.Fatalf("expected unconfirmed answer to survive via redis, got %+v", view.Answers)
	}

	result, err := second.Submit(ctx, app.TriggerManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 2 || result.Total != 3 || result.Passed == nil || !*result.Passed {
		t.Fatalf("expected 2/3 passing, got %+v", result)
	}

	if n, _ := redisClient.Exists(ctx, "quiz-client:dana:"+app.SessionKey(1)).Result(); n != 0 {
		t.Fatalf("expected local session cleared from redis")
	}
	if n, _ := redisClient.Exists(ctx, "quiz:1:content").Result(); n != 1 {
		t.Fatalf("expected quiz content cached in redis")
	}

	third := newController()
	if err := third.Start(ctx, 1); !errors.Is(err, domain.ErrSessionUnavailable) {
		t.Fatalf("expected completed attempt to be refused, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
