package providers

import (
	"encoding/json"

	"ai_gateway/internal/models"
)

// Role is the speaker of a conversation turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn in the canonical shape every wire format is built from.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatOptions selects the provider and model and tunes generation.
// An empty Provider picks the most preferred enabled provider; an empty Model
// picks the provider's default model.
type ChatOptions struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	Stream      bool
}

// Usage is the normalized token accounting of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the canonical completion every wire format is parsed into.
type Result struct {
	Content      string          `json:"content"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        Usage           `json:"usage"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

func newUsage(prompt, completion int) Usage {
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// Target is a resolved provider/model pair together with the strategy that speaks its wire format.
type Target struct {
	Provider *models.Provider
	Model    *models.Model
	Strategy Strategy
}
