package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/app")
	t.Setenv("N8N_WEBHOOK_URL", "https://n8n.example.com/webhook")
	t.Setenv("N8N_WEBHOOK_API_KEY", "key")
	t.Setenv("WHAPI_TOKEN", "token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg := Load()
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	require.Equal(t, 60, cfg.BatchDelaySeconds)
	require.Equal(t, time.Minute, cfg.BatchDelay())
	require.Equal(t, 10, cfg.MaxFileSizeMB)
	require.Equal(t, int64(10*1024*1024), cfg.MaxFileSizeBytes())
	require.Equal(t, "https://gate.whapi.cloud", cfg.WhapiAPIURL)
	require.Equal(t, "whisper-1", cfg.OpenAITranscriptionModel)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("BATCH_DELAY_SECONDS", "15")
	t.Setenv("MAX_FILE_SIZE_MB", "25")
	t.Setenv("WHAPI_API_URL", "https://gate.example.com/")

	cfg := Load()
	require.Equal(t, 15*time.Second, cfg.BatchDelay())
	require.Equal(t, int64(25*1024*1024), cfg.MaxFileSizeBytes())
	// Trailing slash is trimmed so path joins stay clean.
	require.Equal(t, "https://gate.example.com", cfg.WhapiAPIURL)
}

func TestLoadRejectsNonsenseValues(t *testing.T) {
	setRequired(t)
	t.Setenv("BATCH_DELAY_SECONDS", "-5")
	t.Setenv("WORKER_CONCURRENCY", "0")

	cfg := Load()
	require.Equal(t, 60, cfg.BatchDelaySeconds)
	require.Equal(t, 10, cfg.WorkerConcurrency)
}
