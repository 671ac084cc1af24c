package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Payload is the entire body sent downstream per flush. The schema is kept to
// exactly these two fields; upstream state (flags, persona fields, message
// bodies) never leaks into it.
type Payload struct {
	UserID              *string `json:"user_id"`
	BatchedMessageCount int     `json:"batched_message_count"`
}

// Client posts batch notifications to the n8n webhook.
type Client struct {
	url    string
	apiKey string
	http   *http.Client

	maxTries        uint
	initialInterval time.Duration
	maxInterval     time.Duration
}

func New(url, apiKey string) *Client {
	return &Client{
		url:             url,
		apiKey:          apiKey,
		http:            &http.Client{Timeout: 30 * time.Second},
		maxTries:        2,
		initialInterval: 2 * time.Second,
		maxInterval:     10 * time.Second,
	}
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

func (c *Client) WithRetry(maxTries uint, initial, max time.Duration) *Client {
	if maxTries > 0 {
		c.maxTries = maxTries
	}
	if initial > 0 {
		c.initialInterval = initial
	}
	if max > 0 {
		c.maxInterval = max
	}
	return c
}

// Forward posts the payload, retrying transport errors and non-2xx responses
// with exponential backoff. The last error is returned once the attempt
// budget is spent.
func (c *Client) Forward(ctx context.Context, p Payload) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.initialInterval
	expo.MaxInterval = c.maxInterval

	op := func() (struct{}, error) {
		return struct{}{}, c.post(ctx, p)
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(c.maxTries),
	)
	return err
}

// SafeForward runs Forward and absorbs any terminal failure. The flush
// handler must never see a forward error: a downstream outage marking flush
// jobs failed would leave them eligible for re-runs and drift the counts.
func (c *Client) SafeForward(ctx context.Context, p Payload) {
	if err := c.Forward(ctx, p); err != nil {
		slog.Error("forwarder: giving up after retries",
			"batched_message_count", p.BatchedMessageCount, "err", err)
	}
}

func (c *Client) post(ctx context.Context, p Payload) error {
	buf, err := json.Marshal(p)
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("forward status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
