package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/fusioncloud/internal/domain/ai"
	"github.com/bryanwahyu/fusioncloud/internal/infra/ai/prompt"
)

const maxTokens = 2048

// Client is an OpenAI-compatible chat client (Groq by default).
type Client struct {
	*openai.Client
	Model string
}

// NewClient creates a client. An empty baseURL uses the OpenAI endpoint.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) Assess(ctx context.Context, logText string) (ai.Verdict, error) {
	model := c.Model
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(logText)},
		},
		Temperature: 0.2,
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
		req.Temperature = 0
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return ai.Verdict{}, fmt.Errorf("%w: %s", ai.ErrQuotaExceeded, apiErr.Message)
		}
		return ai.Verdict{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ai.Verdict{}, ai.ErrEmptyVerdict
	}
	return parseVerdict(resp.Choices[0].Message.Content)
}

// parseVerdict reads the model reply. cve_data may come back as a string or a list.
func parseVerdict(content string) (ai.Verdict, error) {
	var raw struct {
		Analysis    string `json:"analysis"`
		ThreatLevel string `json:"threat_level"`
		CVEData     any    `json:"cve_data"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &raw); err != nil {
		return ai.Verdict{}, fmt.Errorf("decode ai verdict: %w", err)
	}
	if strings.TrimSpace(raw.Analysis) == "" {
		return ai.Verdict{}, ai.ErrEmptyVerdict
	}

	v := ai.Verdict{Analysis: raw.Analysis, ThreatLevel: raw.ThreatLevel}
	switch cve := raw.CVEData.(type) {
	case string:
		v.CVEData = strings.TrimSpace(cve)
	case []any:
		lines := make([]string, 0, len(cve))
		for _, item := range cve {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				lines = append(lines, strings.TrimSpace(s))
			}
		}
		v.CVEData = strings.Join(lines, "\n")
	}
	return v, nil
}

// extractJSON strips markdown code fences some models add despite the response format.
func extractJSON(content string) string {
	if strings.Contains(content, "```json") {
		start := strings.Index(content, "```json") + 7
		end := strings.LastIndex(content, "```")
		if end > start {
			content = content[start:end]
		}
	} else if strings.Contains(content, "```") {
		start := strings.Index(content, "```") + 3
		end := strings.LastIndex(content, "```")
		if end > start {
			content = content[start:end]
		}
	}
	return strings.TrimSpace(content)
}
