package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ai_gateway/internal/models"
)

const (
	anthropicVersion          = "2023-06-01"
	anthropicDefaultMaxTokens = 1024
)

// anthropicStrategy speaks the messages protocol, where the system prompt is a
// top-level field rather than a turn
type anthropicStrategy struct{}

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (anthropicStrategy) Format() models.WireFormat {
	return models.WireFormatAnthropic
}

func (anthropicStrategy) Endpoint(baseURL, model, apiKey string) string {
	return joinURL(baseURL, "/messages")
}

func (anthropicStrategy) BuildPayload(messages []Message, model string, opts ChatOptions) ([]byte, error) {
	req := anthropicRequest{
		Model:       model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Messages:    make([]Message, 0, len(messages)),
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = anthropicDefaultMaxTokens
	}

	var system []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, m)
	}
	req.System = strings.Join(system, "\n\n")

	return json.Marshal(req)
}

func (anthropicStrategy) Authenticate(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

func (anthropicStrategy) ParseResponse(body []byte) (*Result, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, errors.New("response has no content")
	}

	return &Result{
		Content:      resp.Content[0].Text,
		FinishReason: resp.StopReason,
		Usage:        newUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		Raw:          json.RawMessage(body),
	}, nil
}
