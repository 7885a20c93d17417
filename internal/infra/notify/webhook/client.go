package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

// Client posts {"text": ...} to a Slack-compatible incoming webhook.
// One attempt per message, no retries.
type Client struct {
	url  string
	http *http.Client
	log  zerolog.Logger
}

// New creates a webhook client. A nil httpClient gets a 10s timeout default.
func New(url string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: url, http: httpClient, log: log.With().Str("component", "notifier").Logger()}
}

// Configured reports whether a sink address is set.
func (c *Client) Configured() bool { return c.url != "" }

func (c *Client) Notify(ctx context.Context, msg domain.NotificationMessage) error {
	if c.url == "" {
		return &domain.NotificationError{Err: domain.ErrSinkNotConfigured}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return &domain.NotificationError{Err: fmt.Errorf("marshal message: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &domain.NotificationError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.NotificationError{Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.NotificationError{StatusCode: resp.StatusCode}
	}
	c.log.Debug().Int("status", resp.StatusCode).Msg("notification delivered")
	return nil
}
