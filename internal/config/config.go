// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type APIConfig struct {
	Port         int           `yaml:"port"`
	APIKey       string        `yaml:"api_key"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SecureCookie bool          `yaml:"secure_cookie"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey       string        `yaml:"openai_key"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	OpenAIModel     string        `yaml:"openai_model"`
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiURL       string        `yaml:"gemini_url"`
	GeminiModel     string        `yaml:"gemini_model"`
	DefaultProvider string        `yaml:"default_provider"`
	RateLimit       int           `yaml:"rate_limit"`  // dispatches per provider per window
	RateWindow      time.Duration `yaml:"rate_window"` //
	MaxRetries      int           `yaml:"max_retries"`
	RetryPause      time.Duration `yaml:"retry_pause"`
}

type QueueConfig struct {
	Interval    time.Duration `yaml:"interval"`     // cycle period
	BatchSize   int           `yaml:"batch_size"`   // claims per cycle
	StaleAfter  time.Duration `yaml:"stale_after"`  // processing -> reclaim threshold
	MaxAttempts int           `yaml:"max_attempts"` //
	Workers     int           `yaml:"workers"`      // pool size
}

type SchedulerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	DailyLimit int           `yaml:"daily_limit"` // evaluations per calendar day
	Batch      int           `yaml:"batch"`       // entries processed per pass
}

type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
	// EncryptionKey enables at-rest encryption of attachments when set.
	// Must be 16, 24 or 32 bytes.
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Queue     QueueConfig     `yaml:"queue"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
	Storage   StorageConfig   `yaml:"storage"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// secrets may come from the environment instead of the file
	overrideFromEnv(&cfg.Database.URL, "DATABASE_URL")
	overrideFromEnv(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	overrideFromEnv(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	overrideFromEnv(&cfg.API.APIKey, "INTAKE_API_KEY")
	overrideFromEnv(&cfg.API.JWTSecret, "INTAKE_JWT_SECRET")
	overrideFromEnv(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	overrideFromEnv(&cfg.Storage.EncryptionKey, "INTAKE_STORAGE_KEY")

	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}
	if cfg.API.APIKey == "" {
		return nil, errors.New("api.api_key is required")
	}
	if cfg.API.JWTSecret == "" {
		return nil, errors.New("api.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.SessionTTL <= 0 {
		cfg.API.SessionTTL = 12 * time.Hour
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.AI.DefaultProvider == "" {
		cfg.AI.DefaultProvider = "openai"
	}
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.AI.RateLimit <= 0 {
		cfg.AI.RateLimit = 60
	}
	if cfg.AI.RateWindow <= 0 {
		cfg.AI.RateWindow = time.Minute
	}
	if cfg.AI.MaxRetries <= 0 {
		cfg.AI.MaxRetries = 2
	}
	if cfg.AI.RetryPause <= 0 {
		cfg.AI.RetryPause = 2 * time.Second
	}
	if cfg.Queue.Interval <= 0 {
		cfg.Queue.Interval = time.Minute
	}
	if cfg.Queue.BatchSize <= 0 {
		cfg.Queue.BatchSize = 10
	}
	if cfg.Queue.StaleAfter <= 0 {
		cfg.Queue.StaleAfter = 15 * time.Minute
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 8
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = time.Hour
	}
	if cfg.Scheduler.DailyLimit <= 0 {
		cfg.Scheduler.DailyLimit = 30
	}
	if cfg.Scheduler.Batch <= 0 {
		cfg.Scheduler.Batch = 50
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data/attachments"
	}
}

func overrideFromEnv(field *string, key string) {
	if v := os.Getenv(key); v != "" {
		*field = v
	}
}
