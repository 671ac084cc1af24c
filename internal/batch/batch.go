// Package batch coalesces bursts of user messages per conversation into a
// single downstream notification. Each inbound message bumps a shared counter
// and pushes the flush out by the configured delay; the flush that survives
// the debouncing forwards a count and clears the state.
//
// State lives in the shared key-value store, not in process memory, so any
// worker in the pool can take the flush. There is no lock around the
// cancel/reschedule pair: two racing AddMessage calls can leave an extra
// scheduled flush behind, and the flush handler's empty-state guard consumes
// it as a no-op. The worst case is one wasted task, never a duplicate forward
// or a lost count.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haimcqueen/message-memory/internal/kv"
)

// Key prefixes carried over from the previous deployment so a new worker can
// pick up batch state written by the old one.
const (
	countPrefix = "n8n_count:"
	userPrefix  = "n8n_user:"
	jobPrefix   = "n8n_job:"
)

// Scheduler schedules and cancels delayed flush tasks. Cancellation of a task
// that already ran or is running must succeed as a no-op upstream; errors
// here are treated as best-effort by the accumulator.
type Scheduler interface {
	ScheduleFlush(ctx context.Context, chatID string, delay time.Duration) (string, error)
	CancelFlush(ctx context.Context, taskID string) error
}

// Accumulator records inbound user messages and keeps exactly one flush
// scheduled per conversation via cancel-before-reschedule.
type Accumulator struct {
	store kv.Store
	sched Scheduler
	delay time.Duration
}

func NewAccumulator(store kv.Store, sched Scheduler, delay time.Duration) *Accumulator {
	return &Accumulator{store: store, sched: sched, delay: delay}
}

// AddMessage counts one user message for the conversation and pushes the
// pending flush out by the debounce delay. userID may be empty; a concrete id
// seen earlier in the window is retained. The increment happens first so the
// message is counted even if scheduling then fails; that failure is returned
// because the batch notification for a counted message is now at risk.
func (a *Accumulator) AddMessage(ctx context.Context, chatID, userID string) error {
	count, err := a.store.Incr(ctx, countPrefix+chatID)
	if err != nil {
		return fmt.Errorf("increment batch count: %w", err)
	}
	slog.Info("batch: message counted", "chat_id", chatID, "count", count)

	if userID != "" {
		if err := a.store.Set(ctx, userPrefix+chatID, userID); err != nil {
			return fmt.Errorf("store batch user: %w", err)
		}
	}

	// The stored id is authoritative for which flush is pending; any handle a
	// worker holds in memory may be stale.
	jobKey := jobPrefix + chatID
	prev, ok, err := a.store.Get(ctx, jobKey)
	if err != nil {
		return fmt.Errorf("read pending flush task: %w", err)
	}
	if ok {
		if err := a.sched.CancelFlush(ctx, prev); err != nil {
			slog.Warn("batch: could not cancel pending flush",
				"chat_id", chatID, "task_id", prev, "err", err)
		}
	}

	taskID, err := a.sched.ScheduleFlush(ctx, chatID, a.delay)
	if err != nil {
		return fmt.Errorf("schedule flush: %w", err)
	}
	if err := a.store.Set(ctx, jobKey, taskID); err != nil {
		return fmt.Errorf("store flush task id: %w", err)
	}

	slog.Info("batch: flush scheduled",
		"chat_id", chatID, "task_id", taskID, "delay", a.delay)
	return nil
}
