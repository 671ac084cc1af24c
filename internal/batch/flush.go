package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/haimcqueen/message-memory/internal/forwarder"
	"github.com/haimcqueen/message-memory/internal/kv"
	"github.com/haimcqueen/message-memory/internal/queue"
)

// Sink receives the flushed batch summary. Implementations absorb their own
// failures; Flush never learns whether the forward landed.
type Sink interface {
	SafeForward(ctx context.Context, p forwarder.Payload)
}

// Flusher handles fired flush tasks: read the accumulated state, forward a
// summary, clear the keys.
type Flusher struct {
	store kv.Store
	sink  Sink
}

func NewFlusher(store kv.Store, sink Sink) *Flusher {
	return &Flusher{store: store, sink: sink}
}

// HandleFlushTask adapts Flush to the task handler signature.
func (f *Flusher) HandleFlushTask(ctx context.Context, t *asynq.Task) error {
	var p queue.FlushPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode flush payload: %w", err)
	}
	return f.Flush(ctx, p.ChatID)
}

// Flush forwards the batch summary for chatID and clears its state. Firing on
// a conversation with no state is a legitimate outcome of the cancel race and
// of superseded tasks; it logs and returns nil without touching the sink.
// State is cleared after the forward attempt regardless of its outcome; the
// sink owns retry and terminal-failure absorption. Store errors propagate so
// the job runner records the failure and the keys stay put for remediation.
func (f *Flusher) Flush(ctx context.Context, chatID string) error {
	raw, ok, err := f.store.Get(ctx, countPrefix+chatID)
	if err != nil {
		return fmt.Errorf("read batch count: %w", err)
	}
	if !ok {
		slog.Info("batch: nothing to flush", "chat_id", chatID)
		return nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("corrupt batch count %q: %w", raw, err)
	}

	var userID *string
	if u, ok, err := f.store.Get(ctx, userPrefix+chatID); err != nil {
		return fmt.Errorf("read batch user: %w", err)
	} else if ok {
		userID = &u
	}

	slog.Info("batch: flushing", "chat_id", chatID, "count", count)
	f.sink.SafeForward(ctx, forwarder.Payload{
		UserID:              userID,
		BatchedMessageCount: count,
	})

	// Deleting an absent key is a no-op, so all three are always issued.
	for _, key := range []string{countPrefix + chatID, userPrefix + chatID, jobPrefix + chatID} {
		if err := f.store.Del(ctx, key); err != nil {
			return fmt.Errorf("clear batch state: %w", err)
		}
	}

	slog.Info("batch: flushed and cleared", "chat_id", chatID, "count", count)
	return nil
}
