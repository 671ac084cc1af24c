package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haimcqueen/message-memory/internal/models"
)

type fakeEnqueuer struct {
	payloads [][]byte
	err      error
}

func (f *fakeEnqueuer) EnqueueProcess(_ context.Context, payload []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, payload)
	return fmt.Sprintf("task-%d", len(f.payloads)), nil
}

const sampleWebhook = `{
  "event": {"type": "messages", "event": "post"},
  "channel_id": "chan-1",
  "messages": [
    {"id": "m1", "from_me": false, "type": "text", "chat_id": "491@s.whatsapp.net",
     "timestamp": 1700000000, "from": "491", "text": {"body": "hi"}},
    {"id": "m2", "from_me": false, "type": "voice", "chat_id": "492@s.whatsapp.net",
     "timestamp": 1700000001, "from": "492",
     "voice": {"id": "v1", "mime_type": "audio/ogg", "file_size": 100, "link": "https://x/v.ogg"}}
  ]
}`

func TestWebhookQueuesEachMessage(t *testing.T) {
	q := &fakeEnqueuer{}
	h := NewWebhookHandler(q)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whapi", strings.NewReader(sampleWebhook))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, q.payloads, 2)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "queued", resp["status"])
	require.Equal(t, float64(2), resp["message_count"])

	var msg models.WebhookMessage
	require.NoError(t, json.Unmarshal(q.payloads[0], &msg))
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, "hi", msg.Text.Body)
}

func TestWebhookIgnoresStatusOnlyPayload(t *testing.T) {
	q := &fakeEnqueuer{}
	h := NewWebhookHandler(q)

	body := `{"event": {"type": "statuses", "event": "post"}, "channel_id": "c",
	          "statuses": [{"id": "s1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whapi", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, q.payloads)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ignored", resp["status"])
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	h := NewWebhookHandler(&fakeEnqueuer{})
	req := httptest.NewRequest(http.MethodPost, "/webhook/whapi", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsNonPost(t *testing.T) {
	h := NewWebhookHandler(&fakeEnqueuer{})
	req := httptest.NewRequest(http.MethodGet, "/webhook/whapi", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhookQueueFailureIsServerError(t *testing.T) {
	h := NewWebhookHandler(&fakeEnqueuer{err: errors.New("redis down")})
	req := httptest.NewRequest(http.MethodPost, "/webhook/whapi", strings.NewReader(sampleWebhook))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
