package models

import "encoding/json"

// TextContent is the body of a text message.
type TextContent struct {
	Body string `json:"body"`
}

// MediaContent covers the shared shape of voice, image, video, document,
// audio and short payloads. Link may be absent for media that has to be
// fetched separately.
type MediaContent struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	Link     string `json:"link"`
	Caption  string `json:"caption"`
	Seconds  int    `json:"seconds"`
}

// WebhookMessage is one message as delivered by the Whapi webhook.
type WebhookMessage struct {
	ID        string        `json:"id"`
	FromMe    bool          `json:"from_me"`
	Type      string        `json:"type"`
	ChatID    string        `json:"chat_id"`
	Timestamp int64         `json:"timestamp"`
	Source    string        `json:"source"`
	From      string        `json:"from"`
	FromName  string        `json:"from_name"`
	Text      *TextContent  `json:"text,omitempty"`
	Voice     *MediaContent `json:"voice,omitempty"`
	Image     *MediaContent `json:"image,omitempty"`
	Video     *MediaContent `json:"video,omitempty"`
	Document  *MediaContent `json:"document,omitempty"`
	Audio     *MediaContent `json:"audio,omitempty"`
	Short     *MediaContent `json:"short,omitempty"`
}

// MediaFor returns the media payload for the given message kind, falling back
// to the short field for reels that were remapped to video.
func (m *WebhookMessage) MediaFor(kind string) *MediaContent {
	switch kind {
	case "voice":
		return m.Voice
	case "image":
		return m.Image
	case "video":
		if m.Video != nil {
			return m.Video
		}
		return m.Short
	case "document":
		return m.Document
	case "audio":
		return m.Audio
	}
	return nil
}

// WebhookEvent describes what kind of webhook fired.
type WebhookEvent struct {
	Type  string `json:"type"`
	Event string `json:"event"`
}

// WhapiWebhook is the full webhook envelope. Status-only webhooks carry no
// messages and are ignored by the receiver.
type WhapiWebhook struct {
	Messages  []WebhookMessage  `json:"messages"`
	Event     WebhookEvent      `json:"event"`
	ChannelID string            `json:"channel_id"`
	Statuses  []json.RawMessage `json:"statuses,omitempty"`
}
