package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bryanwahyu/fusioncloud/internal/config"
	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

// Client talks to a running api server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL (e.g. http://localhost:8080). A nil
// httpClient gets a timeout a little above the server's analyzer timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 150 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// APIError is a non-2xx reply with the server's {error, details} body.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("api %d: %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("api %d: %s", e.StatusCode, e.Message)
}

// Submit posts the request to /api/analyze. Any 4xx reply wraps ErrValidation:
// the server refused the input and no analysis ran. The response body is read
// with the same rules the pipeline applies to analyzer output, so structured
// fields of any shape come through intact.
func (c *Client) Submit(ctx context.Context, req domain.Request) (domain.Result, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/analyze", req, &raw); err != nil {
		return domain.Result{}, err
	}
	return decodeResult(raw, time.Now().UTC())
}

// decodeResult maps an /api/analyze body onto a Result. Only a body that is
// not a JSON object is a protocol error.
func decodeResult(raw []byte, now time.Time) (domain.Result, error) {
	res, ok := domain.InterpretStructured(string(raw), now)
	if !ok {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return domain.Result{}, fmt.Errorf("decode response: %w", err)
		}
		narrative, _ := doc["analysis"].(string)
		res = domain.InterpretHeuristic(narrative, now)
		res.Structured = doc
	}
	doc := res.Structured
	if ts, ok := doc["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			res.Timestamp = t
		}
	}
	res.Synthetic, _ = doc["synthetic"].(bool)
	delete(doc, "synthetic")
	delete(doc, "fileName")
	delete(doc, "notified")
	return res, nil
}

// CheckEnv reads the server's credential probe.
func (c *Client) CheckEnv(ctx context.Context) (config.Probe, error) {
	var p config.Probe
	err := c.do(ctx, http.MethodGet, "/api/check-env", nil, &p)
	return p, err
}

// Notify relays msg through the server's /api/notify endpoint.
func (c *Client) Notify(ctx context.Context, msg domain.NotificationMessage) error {
	payload := map[string]string{"message": msg.Text}
	if err := c.do(ctx, http.MethodPost, "/api/notify", payload, nil); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return &domain.NotificationError{StatusCode: apiErr.StatusCode, Err: apiErr}
		}
		return &domain.NotificationError{Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
			apiErr.Details = e.Details
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("%w: %w", domain.ErrValidation, apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
