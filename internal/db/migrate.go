package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL mirrors migrations/001_init.sql
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  phone TEXT NOT NULL UNIQUE,
  subscription_status TEXT NULL,  -- e.g. "active" | "pilot"
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_users_phone ON users (phone);

CREATE TABLE IF NOT EXISTS messages (
  id TEXT PRIMARY KEY,
  user_id TEXT NULL REFERENCES users(id),
  chat_id TEXT NOT NULL,
  origin TEXT NOT NULL,           -- user | agent
  type TEXT NOT NULL,             -- text | voice | image | video | document | audio
  content TEXT NOT NULL,
  media_url TEXT NULL,
  extracted_media_content TEXT NULL,
  whapi_message_id TEXT NULL,
  session_id TEXT NULL,
  message_sent_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_time ON messages (chat_id, message_sent_at DESC);

CREATE TABLE IF NOT EXISTS message_processing_jobs (
  id BIGSERIAL PRIMARY KEY,
  message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
  status TEXT NOT NULL DEFAULT 'failed',
  error_message TEXT NULL,
  retry_count INT NOT NULL DEFAULT 0,
  webhook_payload JSONB NULL,
  last_attempt_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_processing_jobs_status ON message_processing_jobs (status, retry_count);
`

// AutoMigrate applies the schema on startup.
func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
