package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client wraps the OpenAI audio transcription endpoint. The worker only
// needs speech-to-text; everything else the platform offers is out of scope
// for this service.
type Client struct {
	apiKey          string
	transcribeModel string
	baseURL         string
	http            *http.Client
}

func New(apiKey, transcribeModel string) *Client {
	return &Client{
		apiKey:          apiKey,
		transcribeModel: transcribeModel,
		baseURL:         "https://api.openai.com/v1",
		http:            &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) WithBaseURL(u string) *Client {
	if u != "" {
		c.baseURL = u
	}
	return c
}

// Transcribe uploads the audio bytes and returns the transcription text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	_ = w.WriteField("model", c.transcribeModel)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &b)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode > 299 {
		bb, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcribe status %d: %s", resp.StatusCode, string(bb))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Text, nil
}
