package whapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client talks to the Whapi gateway (sending messages, presence indicators,
// media downloads). All calls carry the bearer token; transient network
// failures and 5xx responses are retried a few times with a short backoff.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	maxRetries int
	backoff    time.Duration
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		http:       &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

func (c *Client) WithRetry(maxRetries int, backoff time.Duration) *Client {
	if maxRetries >= 0 {
		c.maxRetries = maxRetries
	}
	if backoff > 0 {
		c.backoff = backoff
	}
	return c
}

// ----------------- helpers -----------------

func (c *Client) doJSONOnce(ctx context.Context, method, url string, body any) (int, []byte, error) {
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(buf))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *Client) doJSONWithRetry(ctx context.Context, method, url string, body any) (int, []byte, error) {
	var lastCode int
	var lastBody []byte

	for try := 1; ; try++ {
		code, b, err := c.doJSONOnce(ctx, method, url, body)
		if err != nil {
			if try <= c.maxRetries && isRetryableNetErr(err) {
				time.Sleep(c.backoff * time.Duration(try))
				continue
			}
			return 0, nil, err
		}
		lastCode, lastBody = code, b
		if code >= 200 && code < 300 {
			return code, b, nil
		}
		if code >= 500 && code <= 599 && try <= c.maxRetries {
			time.Sleep(c.backoff * time.Duration(try))
			continue
		}
		return lastCode, lastBody, nil
	}
}

func isRetryableNetErr(err error) bool {
	if err == nil {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "unexpected eof")
}

// ----------------- operations -----------------

// SendText sends a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	body := map[string]any{
		"to":   chatID,
		"body": text,
	}
	code, b, err := c.doJSONWithRetry(ctx, http.MethodPost, c.baseURL+"/messages/text", body)
	if err != nil {
		return err
	}
	if code > 299 {
		return fmt.Errorf("whapi send text %d: %s", code, string(b))
	}
	return nil
}

// SendPresence shows a typing/recording indicator in the chat for
// delaySeconds. A non-positive delay falls back to a short default.
func (c *Client) SendPresence(ctx context.Context, chatID, presence string, delaySeconds int) error {
	if delaySeconds <= 0 {
		delaySeconds = 10
	}
	body := map[string]any{
		"presence": presence,
		"delay":    delaySeconds,
	}
	code, b, err := c.doJSONWithRetry(ctx, http.MethodPut, c.baseURL+"/presences/"+chatID, body)
	if err != nil {
		return err
	}
	if code > 299 {
		return fmt.Errorf("whapi presence %d: %s", code, string(b))
	}
	return nil
}

// Download fetches media content from the link included in a webhook payload.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("whapi download %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}
