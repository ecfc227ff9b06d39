package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ai_gateway/internal/models"
)

// geminiStrategy speaks generateContent. The credential travels in the query string.
type geminiStrategy struct{}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (geminiStrategy) Format() models.WireFormat {
	return models.WireFormatGemini
}

func (geminiStrategy) Endpoint(baseURL, model, apiKey string) string {
	return joinURL(baseURL, "/models/"+url.PathEscape(model)+":generateContent?key="+url.QueryEscape(apiKey))
}

func (geminiStrategy) BuildPayload(messages []Message, model string, opts ChatOptions) ([]byte, error) {
	req := geminiRequest{
		Contents: make([]geminiContent, 0, len(messages)),
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: opts.MaxTokens,
			Temperature:     opts.Temperature,
		},
	}

	var system []string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}

	return json.Marshal(req)
}

// Authenticate is a no-op: the key is part of the endpoint
func (geminiStrategy) Authenticate(req *http.Request, apiKey string) {}

func (geminiStrategy) ParseResponse(body []byte) (*Result, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("response has no candidates")
	}

	return &Result{
		Content:      resp.Candidates[0].Content.Parts[0].Text,
		FinishReason: resp.Candidates[0].FinishReason,
		Usage:        newUsage(resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount),
		Raw:          json.RawMessage(body),
	}, nil
}
