package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/haimcqueen/message-memory/internal/batch"
	"github.com/haimcqueen/message-memory/internal/config"
	"github.com/haimcqueen/message-memory/internal/db"
	"github.com/haimcqueen/message-memory/internal/forwarder"
	"github.com/haimcqueen/message-memory/internal/kv"
	"github.com/haimcqueen/message-memory/internal/models"
	"github.com/haimcqueen/message-memory/internal/openai"
	"github.com/haimcqueen/message-memory/internal/pipeline"
	"github.com/haimcqueen/message-memory/internal/queue"
	"github.com/haimcqueen/message-memory/internal/whapi"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer pool.Close()

	// Migration also runs here so a worker can boot against a fresh database.
	if err := db.AutoMigrate(ctx, pool); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	store, err := kv.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connect error: %v", err)
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("redis ping error: %v", err)
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	q := queue.NewClient(redisOpt)
	defer q.Close()

	accumulator := batch.NewAccumulator(store, q, cfg.BatchDelay())
	fwd := forwarder.New(cfg.N8NWebhookURL, cfg.N8NWebhookAPIKey)
	flusher := batch.NewFlusher(store, fwd)

	repo := models.NewRepo(pool)
	wpp := whapi.New(cfg.WhapiAPIURL, cfg.WhapiToken)
	ai := openai.New(cfg.OpenAIAPIKey, cfg.OpenAITranscriptionModel)
	processor := pipeline.New(repo, wpp, ai, accumulator, cfg.MaxFileSizeBytes())

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{queue.Name: 1},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessMessage, processor.HandleProcessTask)
	mux.HandleFunc(queue.TypeFlushBatch, flusher.HandleFlushTask)

	slog.Info("worker starting",
		"queue", queue.Name,
		"concurrency", cfg.WorkerConcurrency,
		"batch_delay", cfg.BatchDelay())
	if err := srv.Run(mux); err != nil {
		log.Fatalf("worker error: %v", err)
	}
}
