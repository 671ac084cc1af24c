// Package pipeline processes one webhook message end to end: extract content,
// resolve the sender, persist the row, and decide whether the message joins
// the batch window for downstream notification.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/haimcqueen/message-memory/internal/models"
)

// Repository is the slice of persistence the pipeline needs.
type Repository interface {
	GetUserIDByPhone(ctx context.Context, phone string) (string, bool, error)
	GetSubscriptionStatusByPhone(ctx context.Context, phone string) (string, bool, error)
	InsertMessage(ctx context.Context, m models.Message) error
	CreateProcessingJob(ctx context.Context, messageID string, webhookPayload []byte, errMsg string) error
	DetectSession(ctx context.Context, chatID string, sentAt time.Time) (string, error)
}

// Messenger sends outbound WhatsApp traffic and fetches media.
type Messenger interface {
	SendText(ctx context.Context, chatID, text string) error
	SendPresence(ctx context.Context, chatID, presence string, delaySeconds int) error
	Download(ctx context.Context, url string) ([]byte, error)
}

// Transcriber turns voice audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Batcher adds a counted user message to the conversation's batch window.
type Batcher interface {
	AddMessage(ctx context.Context, chatID, userID string) error
}

type Processor struct {
	repo    Repository
	wpp     Messenger
	ai      Transcriber
	batcher Batcher

	maxFileBytes int64
}

func New(repo Repository, wpp Messenger, ai Transcriber, batcher Batcher, maxFileBytes int64) *Processor {
	return &Processor{
		repo:         repo,
		wpp:          wpp,
		ai:           ai,
		batcher:      batcher,
		maxFileBytes: maxFileBytes,
	}
}

// HandleProcessTask adapts Process to the task handler signature.
func (p *Processor) HandleProcessTask(ctx context.Context, t *asynq.Task) error {
	var msg models.WebhookMessage
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("decode message payload: %w", err)
	}
	return p.Process(ctx, msg, t.Payload())
}

// Process handles one inbound message. Returning an error marks the job
// failed; that is reserved for losing the message itself. Batch-notification
// trouble is logged and swallowed because the message is already durable.
func (p *Processor) Process(ctx context.Context, msg models.WebhookMessage, raw []byte) error {
	msgType := msg.Type
	if msgType == "short" {
		// WhatsApp reels are stored as videos.
		msgType = "video"
	}

	origin := "user"
	if msg.FromMe {
		origin = "agent"
	}
	slog.Info("pipeline: processing message",
		"message_id", msg.ID, "type", msgType, "chat_id", msg.ChatID, "origin", origin)

	// Sender resolution. Agent messages are keyed by the receiving customer,
	// extracted from the chat id ("4915...@s.whatsapp.net").
	phone := msg.From
	if msg.FromMe {
		phone = strings.SplitN(msg.ChatID, "@", 2)[0]
	}

	userID, userFound, err := p.repo.GetUserIDByPhone(ctx, phone)
	if err != nil {
		slog.Warn("pipeline: user lookup failed, continuing without user_id",
			"phone", phone, "err", err)
		userID, userFound = "", false
	} else if !userFound {
		slog.Warn("pipeline: no user for phone, message saved with null user_id", "phone", phone)
	}

	pilot := false
	if status, ok, err := p.repo.GetSubscriptionStatusByPhone(ctx, phone); err != nil {
		slog.Warn("pipeline: subscription lookup failed", "phone", phone, "err", err)
	} else if ok && status == "pilot" {
		pilot = true
	}

	if origin == "user" && !pilot {
		if err := p.wpp.SendPresence(ctx, msg.ChatID, "typing", 0); err != nil {
			slog.Warn("pipeline: presence failed", "chat_id", msg.ChatID, "err", err)
		}
	}

	ext := p.extractContent(ctx, &msg, msgType, origin, pilot)

	sentAt := time.Unix(msg.Timestamp, 0).UTC()
	sessionID, err := p.repo.DetectSession(ctx, msg.ChatID, sentAt)
	if err != nil {
		slog.Warn("pipeline: session detection failed, opening new session",
			"chat_id", msg.ChatID, "err", err)
		sessionID = uuid.NewString()
	}

	row := models.Message{
		ID:             uuid.NewString(),
		ChatID:         msg.ChatID,
		Origin:         origin,
		Type:           msgType,
		Content:        sanitizeText(ext.content),
		MediaURL:       ext.mediaURL,
		WhapiMessageID: msg.ID,
		SessionID:      &sessionID,
		MessageSentAt:  sentAt,
	}
	if userFound {
		row.UserID = &userID
	}
	if err := p.repo.InsertMessage(ctx, row); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	// Batching decision: only real user messages from non-pilot accounts,
	// and never a message whose media was rejected for size.
	if !msg.FromMe && !ext.skipBatch && !pilot {
		if err := p.batcher.AddMessage(ctx, msg.ChatID, userID); err != nil {
			slog.Error("pipeline: failed to add message to batch",
				"chat_id", msg.ChatID, "err", err)
		}
	}

	if ext.procErr != "" {
		if err := p.repo.CreateProcessingJob(ctx, row.ID, raw, ext.procErr); err != nil {
			slog.Warn("pipeline: could not record processing job",
				"message_id", row.ID, "err", err)
		}
	}

	slog.Info("pipeline: message processed", "message_id", msg.ID, "db_id", row.ID)
	return nil
}

// extracted is the outcome of content extraction for one message.
type extracted struct {
	content  string
	mediaURL *string
	procErr  string // structured annotation for the processing-jobs table
	// skipBatch is decided before any notification send is attempted, so a
	// failed notification cannot un-skip an oversized upload.
	skipBatch bool
}

func (p *Processor) extractContent(ctx context.Context, msg *models.WebhookMessage, msgType, origin string, pilot bool) extracted {
	switch msgType {
	case "text":
		if msg.Text != nil {
			return extracted{content: msg.Text.Body}
		}
		return extracted{content: ""}

	case "voice":
		return p.extractVoice(ctx, msg)

	case "image", "video", "document", "audio":
		return p.extractMedia(ctx, msg, msgType, origin, pilot)

	default:
		slog.Warn("pipeline: unsupported message type", "type", msgType, "message_id", msg.ID)
		return extracted{content: "Unsupported message type: " + msgType}
	}
}

func (p *Processor) extractVoice(ctx context.Context, msg *models.WebhookMessage) extracted {
	if msg.Voice == nil || msg.Voice.Link == "" {
		slog.Warn("pipeline: voice message without URL", "message_id", msg.ID)
		return extracted{
			content: "[Voice message - no URL available]",
			procErr: "MISSING_DATA::voice_url::no_voice_url_in_webhook",
		}
	}

	audio, err := p.wpp.Download(ctx, msg.Voice.Link)
	if err != nil {
		slog.Error("pipeline: voice download failed", "message_id", msg.ID, "err", err)
		return extracted{
			content: "[Voice message - transcription failed]",
			procErr: fmt.Sprintf("TRANSCRIPTION::download::%v", err),
		}
	}

	start := time.Now()
	text, err := p.ai.Transcribe(ctx, audio, "voice.ogg")
	if err != nil {
		slog.Error("pipeline: transcription failed", "message_id", msg.ID, "err", err)
		return extracted{
			content: "[Voice message - transcription failed]",
			procErr: fmt.Sprintf("TRANSCRIPTION::api::%v", err),
		}
	}
	slog.Info("pipeline: voice transcribed",
		"message_id", msg.ID, "duration", time.Since(start))

	link := msg.Voice.Link
	return extracted{content: text, mediaURL: &link}
}

func (p *Processor) extractMedia(ctx context.Context, msg *models.WebhookMessage, msgType, origin string, pilot bool) extracted {
	media := msg.MediaFor(msgType)
	if media == nil {
		media = &models.MediaContent{}
	}

	out := extracted{content: media.Caption}
	if out.content == "" {
		out.content = "[" + strings.ToUpper(msgType[:1]) + msgType[1:] + " message]"
	}

	oversized := msgType == "document" && media.FileSize > p.maxFileBytes
	if oversized {
		// Decided before the notice below goes out; a send failure must not
		// re-enroll the message into the batch.
		out.skipBatch = true
		out.procErr = fmt.Sprintf("FILE_TOO_LARGE::%d::%dMB_limit",
			media.FileSize, p.maxFileBytes/(1024*1024))
		out.content = fmt.Sprintf("[Document too large: %.2fMB]",
			float64(media.FileSize)/1024/1024)
		slog.Warn("pipeline: document exceeds size limit",
			"message_id", msg.ID, "file_size", media.FileSize)
	}

	if origin == "user" && !pilot {
		var notice string
		switch {
		case msgType == "video":
			notice = "We cannot watch videos yet."
		case oversized:
			notice = "Sorry, the file is too big, can you compress it or delete unneeded parts?"
		case msgType == "document":
			notice = "Reading the doc you're sending me"
		}
		if notice != "" {
			if err := p.wpp.SendText(ctx, msg.ChatID, notice); err != nil {
				slog.Warn("pipeline: file notification failed",
					"chat_id", msg.ChatID, "err", err)
			}
		}
	}

	if media.ID == "" {
		out.procErr = fmt.Sprintf("MISSING_DATA::media_id::%s_message_%s", msgType, msg.ID)
		return out
	}
	if oversized {
		return out
	}
	if media.Link != "" {
		link := media.Link
		out.mediaURL = &link
	} else {
		out.procErr = fmt.Sprintf("MEDIA_PROCESSING::no_link::%s_%s", msgType, media.ID)
	}
	return out
}

// sanitizeText strips the corner-bracket markers left over from the old
// automation flow and trims whitespace.
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "【", "")
	s = strings.ReplaceAll(s, "】", "")
	return strings.TrimSpace(s)
}
