package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`
	Storage struct {
		// Driver is memory, file or redis.
		Driver  string `yaml:"driver"`
		Dir     string `yaml:"dir"`
		Profile string `yaml:"profile"`
	} `yaml:"storage"`
	Timer struct {
		Tick  string `yaml:"tick"`
		Grace string `yaml:"grace"`
	} `yaml:"timer"`
	Submit struct {
		TimeoutRetries uint64 `yaml:"timeout_retries"`
		RetryInterval  string `yaml:"retry_interval"`
	} `yaml:"submit"`
	Result struct {
		ExposePassed bool `yaml:"expose_passed"`
	} `yaml:"result"`
	Bridge struct {
		Port string `yaml:"port"`
	} `yaml:"bridge"`
	Server struct {
		Port         string   `yaml:"port"`
		PassPercent  int      `yaml:"pass_percent"`
		AllowOrigins []string `yaml:"allow_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
}

// Default is the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.API.BaseURL = "http://localhost:8080"
	cfg.API.Timeout = "15s"
	cfg.Storage.Driver = "file"
	cfg.Storage.Dir = ".quiz-client"
	cfg.Timer.Tick = "1s"
	cfg.Timer.Grace = "5s"
	cfg.Submit.TimeoutRetries = 3
	cfg.Submit.RetryInterval = "2s"
	cfg.Bridge.Port = "8090"
	cfg.Server.Port = "8080"
	cfg.Server.PassPercent = 50
	cfg.Redis.TTL = "24h"
	cfg.Quiz.TTL = "10m"
	return cfg
}

// Load reads YAML config from path over the defaults. A missing file is
// not an error. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("QUIZ_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("QUIZ_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("QUIZ_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v, err := strconv.Atoi(os.Getenv("QUIZ_PASS_PERCENT")); err == nil {
		cfg.Server.PassPercent = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
