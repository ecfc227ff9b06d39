package providers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ai_gateway/internal/models"
)

// openAIStrategy speaks the chat/completions protocol
type openAIStrategy struct{}

type openAIRequest struct {
	Model         string               `json:"model"`
	Messages      []Message            `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   float64              `json:"temperature"`
	Stream        bool                 `json:"stream"`
	StreamOptions *openAIStreamOptions `json:"stream_options,omitempty"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage openAIUsage `json:"usage"`
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
}

func (openAIStrategy) Format() models.WireFormat {
	return models.WireFormatOpenAI
}

func (openAIStrategy) Endpoint(baseURL, model, apiKey string) string {
	return joinURL(baseURL, "/chat/completions")
}

func (openAIStrategy) BuildPayload(messages []Message, model string, opts ChatOptions) ([]byte, error) {
	req := openAIRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      opts.Stream,
	}
	if opts.Stream {
		req.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	return json.Marshal(req)
}

func (openAIStrategy) Authenticate(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

func (openAIStrategy) ParseResponse(body []byte) (*Result, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("response has no choices")
	}

	return &Result{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
		Usage:        newUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		Raw:          json.RawMessage(body),
	}, nil
}

// ParseStream folds a server-sent event stream of chunks into one result.
// Usage is taken from the final usage chunk when the server sends one.
func (openAIStrategy) ParseStream(r io.Reader) (*Result, error) {
	reader := newSSEReader(r)
	var (
		content strings.Builder
		result  Result
		last    []byte
	)

	for {
		data, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read stream: %w", err)
		}

		var chunk openAIChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		last = data

		if len(chunk.Choices) > 0 {
			content.WriteString(chunk.Choices[0].Delta.Content)
			if fr := chunk.Choices[0].FinishReason; fr != nil && *fr != "" {
				result.FinishReason = *fr
			}
		}
		if chunk.Usage != nil {
			result.Usage = newUsage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
		}
	}

	if last == nil {
		return nil, errors.New("stream ended without data")
	}
	result.Content = content.String()
	result.Raw = json.RawMessage(last)
	return &result, nil
}

// sseReader yields the data payloads of a server-sent event stream
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseReader{scanner: scanner}
}

// Read returns the next data payload, or io.EOF at the [DONE] marker or end of stream
func (s *sseReader) Read() ([]byte, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}

		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			return nil, io.EOF
		}

		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
