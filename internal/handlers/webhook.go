package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/haimcqueen/message-memory/internal/models"
)

// Enqueuer queues a message-processing task and returns its id.
type Enqueuer interface {
	EnqueueProcess(ctx context.Context, payload []byte) (string, error)
}

type webhookHandler struct {
	q Enqueuer
}

// NewWebhookHandler returns the Whapi webhook receiver. It validates the
// envelope, queues one processing task per message and answers immediately;
// all real work happens in the worker.
func NewWebhookHandler(q Enqueuer) http.Handler {
	return &webhookHandler{q: q}
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, 2<<20)) // 2MB
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	var hook models.WhapiWebhook
	if err := json.Unmarshal(raw, &hook); err != nil {
		slog.Warn("webhook: invalid json", "err", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	// Status updates and other non-message webhooks are acknowledged and
	// dropped.
	if len(hook.Messages) == 0 {
		slog.Info("webhook: ignoring non-message webhook", "event_type", hook.Event.Type)
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ignored",
			"reason": "not a message webhook",
		})
		return
	}

	ctx := r.Context()
	for _, msg := range hook.Messages {
		payload, err := json.Marshal(msg)
		if err != nil {
			slog.Error("webhook: marshal message", "message_id", msg.ID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		taskID, err := h.q.EnqueueProcess(ctx, payload)
		if err != nil {
			slog.Error("webhook: enqueue failed", "message_id", msg.ID, "err", err)
			http.Error(w, "queue error", http.StatusInternalServerError)
			return
		}
		slog.Info("webhook: message queued",
			"message_id", msg.ID, "type", msg.Type, "chat_id", msg.ChatID, "task_id", taskID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "queued",
		"message_count": len(hook.Messages),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
