package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/haimcqueen/message-memory/internal/config"
	"github.com/haimcqueen/message-memory/internal/db"
	"github.com/haimcqueen/message-memory/internal/handlers"
	"github.com/haimcqueen/message-memory/internal/queue"
)

func main() {
	cfg := config.Load()

	// DB (the server owns schema migration at boot)
	pool, err := db.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer pool.Close()

	if err := db.AutoMigrate(context.Background(), pool); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	q := queue.NewClient(redisOpt)
	defer q.Close()

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/webhook/whapi", handlers.NewWebhookHandler(q))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("server listening", "addr", cfg.Addr, "environment", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
