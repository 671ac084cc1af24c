package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	WhapiToken  string
	WhapiAPIURL string

	OpenAIAPIKey             string
	OpenAITranscriptionModel string

	N8NWebhookURL    string
	N8NWebhookAPIKey string

	// Debounce delay (seconds) before a batch flush fires. Reset on every
	// new message. ENV: BATCH_DELAY_SECONDS
	BatchDelaySeconds int

	// Documents above this size are rejected with a notice and skipped.
	MaxFileSizeMB int

	WorkerConcurrency int

	Environment string
}

// getenv returns the env var value or a default.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func Load() Config {
	cfg := Config{
		Addr:        getenv("APP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getenv("REDIS_URL", "redis://localhost:6379"),

		WhapiToken:  os.Getenv("WHAPI_TOKEN"),
		WhapiAPIURL: strings.TrimRight(getenv("WHAPI_API_URL", "https://gate.whapi.cloud"), "/"),

		OpenAIAPIKey:             os.Getenv("OPENAI_API_KEY"),
		OpenAITranscriptionModel: getenv("OPENAI_TRANSCRIPTION_MODEL", "whisper-1"),

		N8NWebhookURL:    os.Getenv("N8N_WEBHOOK_URL"),
		N8NWebhookAPIKey: os.Getenv("N8N_WEBHOOK_API_KEY"),

		BatchDelaySeconds: getenvInt("BATCH_DELAY_SECONDS", 60),
		MaxFileSizeMB:     getenvInt("MAX_FILE_SIZE_MB", 10),
		WorkerConcurrency: getenvInt("WORKER_CONCURRENCY", 10),

		Environment: getenv("ENVIRONMENT", "development"),
	}

	if cfg.BatchDelaySeconds <= 0 {
		cfg.BatchDelaySeconds = 60
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 10
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 10
	}

	// Guard rails
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if cfg.N8NWebhookURL == "" {
		log.Fatal("N8N_WEBHOOK_URL is required")
	}
	if cfg.N8NWebhookAPIKey == "" {
		log.Fatal("N8N_WEBHOOK_API_KEY is required")
	}
	if cfg.WhapiToken == "" {
		log.Fatal("WHAPI_TOKEN is required")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}
	return cfg
}

// BatchDelay returns the debounce delay as a duration.
func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelaySeconds) * time.Second
}

// MaxFileSizeBytes returns the document size limit in bytes.
func (c Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}
