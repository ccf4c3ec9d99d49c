package cli

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"quiz-client/internal/backend"
	"quiz-client/internal/config"
	"quiz-client/internal/infra/memory"
	pgloader "quiz-client/internal/infra/postgres"
	redisstore "quiz-client/internal/infra/redis"
)

// NewServeCmd builds the CLI subcommand that runs the reference quiz API.
func NewServeCmd(configPath, port *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference quiz API for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "store the demo quiz in Postgres before serving")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string, seed bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	handler, cleanup, err := newReferenceAPI(ctx, cfg, seed)
	if err != nil {
		return err
	}
	defer cleanup()

	gin.SetMode(gin.ReleaseMode)
	return serveUntilSignal(ctx, &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router(cfg.Server.AllowOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}, "reference quiz API")
}

// newReferenceAPI assembles the reference API: quiz content from Postgres or
// the built-in demo quiz, cached in Redis or memory; attempts in Redis or memory.
func newReferenceAPI(ctx context.Context, cfg config.Config, seed bool) (*backend.Handler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(memory.DemoQuiz())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		pg := pgloader.NewQuizLoader(pool)
		if seed {
			if err := pg.SaveQuiz(ctx, memory.DemoQuiz()); err != nil {
				cleanup()
				return nil, nil, err
			}
			log.Printf("seeded demo quiz %d", memory.DemoQuiz().Quiz.ID)
		}
		loader = pg
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes backend.QuizRepository
	var attempts backend.AttemptStore
	if cfg.Redis.Addr != "" {
		client := newRedisClient(cfg)
		closers = append(closers, func() { _ = client.Close() })
		quizzes = redisstore.NewQuizRepository(client, loader, quizTTL)
		attempts = redisstore.NewAttemptStore(client, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
		attempts = memory.NewAttemptStore()
	}

	service := backend.NewService(quizzes, attempts, backend.Options{PassPercent: cfg.Server.PassPercent})
	return backend.NewHandler(service), cleanup, nil
}
