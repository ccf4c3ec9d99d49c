package cli

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-client/internal/app"
	"quiz-client/internal/config"
	"quiz-client/internal/infra/file"
	"quiz-client/internal/infra/memory"
	redisstore "quiz-client/internal/infra/redis"
	transport "quiz-client/internal/transport/http"
)

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// newKVStore picks the local session backend. The returned cleanup must be
// called once the engine is done with it.
func newKVStore(cfg config.Config) (app.KVStore, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.NewSessionStore(), func() {}, nil
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, nil, fmt.Errorf("storage driver redis needs redis.addr")
		}
		client := newRedisClient(cfg)
		ttl := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)
		return redisstore.NewSessionStore(client, ttl, cfg.Storage.Profile), func() { _ = client.Close() }, nil
	case "", "file":
		dir := cfg.Storage.Dir
		if cfg.Storage.Profile != "" {
			dir = filepath.Join(dir, cfg.Storage.Profile)
		}
		store, err := file.NewSessionStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newAPIClient(cfg config.Config) *transport.Client {
	return transport.NewClient(cfg.API.BaseURL, cfg.API.Token, config.TTLDuration(cfg.API.Timeout, 15*time.Second))
}

func controllerOptions(cfg config.Config, logger *log.Logger, hooks app.Hooks) app.Options {
	return app.Options{
		TickInterval:   config.TTLDuration(cfg.Timer.Tick, time.Second),
		Grace:          config.TTLDuration(cfg.Timer.Grace, 5*time.Second),
		ExposePassed:   cfg.Result.ExposePassed,
		TimeoutRetries: cfg.Submit.TimeoutRetries,
		RetryInterval:  config.TTLDuration(cfg.Submit.RetryInterval, 2*time.Second),
		Logger:         logger,
		Hooks:          hooks,
	}
}
