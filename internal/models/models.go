package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sessionGap is the idle window after which a new message opens a new session.
const sessionGap = 30 * time.Minute

// Message is one stored inbound or outbound WhatsApp message. UserID is the
// internal user id resolved by phone lookup and may be nil when the sender is
// unknown. ExtractedMediaContent carries parsed document text when present.
type Message struct {
	ID                    string
	UserID                *string
	ChatID                string
	Origin                string // "user" | "agent"
	Type                  string // "text" | "voice" | "image" | "video" | "document" | "audio"
	Content               string
	MediaURL              *string
	ExtractedMediaContent *string
	WhapiMessageID        string
	SessionID             *string
	MessageSentAt         time.Time
}

// Repo bundles the queries the pipeline needs against the relational store.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// GetUserIDByPhone resolves the internal user id for a WhatsApp phone number.
// An unknown phone is not an error.
func (r *Repo) GetUserIDByPhone(ctx context.Context, phone string) (string, bool, error) {
	var id string
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE phone=$1 LIMIT 1`, phone).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// GetSubscriptionStatusByPhone returns the subscription status for a phone
// number, used to exclude pilot accounts from batching and notifications.
func (r *Repo) GetSubscriptionStatusByPhone(ctx context.Context, phone string) (string, bool, error) {
	var status *string
	err := r.pool.QueryRow(ctx,
		`SELECT subscription_status FROM users WHERE phone=$1 LIMIT 1`, phone).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if status == nil {
		return "", false, nil
	}
	return *status, true, nil
}

// InsertMessage stores one message row.
func (r *Repo) InsertMessage(ctx context.Context, m Message) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO messages
            (id, user_id, chat_id, origin, type, content, media_url,
             extracted_media_content, whapi_message_id, session_id, message_sent_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `, m.ID, m.UserID, m.ChatID, m.Origin, m.Type, m.Content, m.MediaURL,
		m.ExtractedMediaContent, m.WhapiMessageID, m.SessionID, m.MessageSentAt)
	return err
}

// CreateProcessingJob records a failed media/voice processing attempt,
// keeping the original payload around for later inspection and reprocessing.
func (r *Repo) CreateProcessingJob(ctx context.Context, messageID string, webhookPayload []byte, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO message_processing_jobs (message_id, status, error_message, webhook_payload)
        VALUES ($1, 'failed', $2, $3)
    `, messageID, errMsg, webhookPayload)
	return err
}

// DetectSession reuses the chat's last session when the previous message is
// recent enough, otherwise opens a fresh one.
func (r *Repo) DetectSession(ctx context.Context, chatID string, sentAt time.Time) (string, error) {
	var lastAt time.Time
	var lastSession *string
	err := r.pool.QueryRow(ctx, `
        SELECT message_sent_at, session_id FROM messages
        WHERE chat_id=$1 ORDER BY message_sent_at DESC LIMIT 1
    `, chatID).Scan(&lastAt, &lastSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.NewString(), nil
	}
	if err != nil {
		return "", err
	}
	if lastSession != nil && sentAt.Sub(lastAt) < sessionGap {
		return *lastSession, nil
	}
	return uuid.NewString(), nil
}
