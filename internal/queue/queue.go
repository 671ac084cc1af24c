package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Name is the queue every task of this service lands on. It is kept from the
// previous deployment so old and new workers can drain the same backlog.
const Name = "whatsapp-messages"

// Task type names.
const (
	TypeProcessMessage = "message:process"
	TypeFlushBatch     = "batch:flush"
)

// FlushPayload is the body of a batch:flush task.
type FlushPayload struct {
	ChatID string `json:"chat_id"`
}

// NewFlushTask builds a flush task for one conversation.
func NewFlushTask(chatID string) (*asynq.Task, error) {
	b, err := json.Marshal(FlushPayload{ChatID: chatID})
	if err != nil {
		return nil, fmt.Errorf("marshal flush payload: %w", err)
	}
	return asynq.NewTask(TypeFlushBatch, b), nil
}

// Client wraps the asynq client and inspector behind the two operations the
// rest of the service needs: enqueue a processing job now, or schedule a
// delayed flush that can later be cancelled by id.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewClient(opt asynq.RedisConnOpt) *Client {
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// EnqueueProcess queues a message-processing task. payload is the raw webhook
// message JSON. Processing jobs are not retried automatically; a failure is
// archived for inspection, same as the flush jobs.
func (c *Client) EnqueueProcess(ctx context.Context, payload []byte) (string, error) {
	task := asynq.NewTask(TypeProcessMessage, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(Name),
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// ScheduleFlush schedules a batch flush for chatID to run after delay and
// returns the task id, which is the cancellation handle.
func (c *Client) ScheduleFlush(ctx context.Context, chatID string, delay time.Duration) (string, error) {
	task, err := NewFlushTask(chatID)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(Name),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// CancelFlush removes a scheduled flush task. A task that already fired or
// was already removed is not an error: the flush handler tolerates firing on
// empty state, so there is nothing left to protect.
func (c *Client) CancelFlush(_ context.Context, taskID string) error {
	err := c.inspector.DeleteTask(Name, taskID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		return nil
	default:
		return err
	}
}

func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return err
	}
	return c.inspector.Close()
}
