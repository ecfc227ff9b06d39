package providers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"ai_gateway/internal/models"
)

// Strategy translates canonical messages to and from one provider wire format.
type Strategy interface {
	// Format returns the wire format this strategy speaks
	Format() models.WireFormat

	// Endpoint builds the request URL
	Endpoint(baseURL, model, apiKey string) string

	// BuildPayload renders the request body
	BuildPayload(messages []Message, model string, opts ChatOptions) ([]byte, error)

	// Authenticate places the credential on the request
	Authenticate(req *http.Request, apiKey string)

	// ParseResponse extracts the canonical result from a successful response body
	ParseResponse(body []byte) (*Result, error)
}

// StreamParser is implemented by strategies that can aggregate a streamed reply
type StreamParser interface {
	ParseStream(r io.Reader) (*Result, error)
}

var strategies = map[models.WireFormat]Strategy{
	models.WireFormatOpenAI:    openAIStrategy{},
	models.WireFormatAnthropic: anthropicStrategy{},
	models.WireFormatGemini:    geminiStrategy{},
}

// StrategyFor returns the strategy for a wire format
func StrategyFor(format models.WireFormat) (Strategy, error) {
	s, ok := strategies[format]
	if !ok {
		return nil, fmt.Errorf("unsupported wire format %q", format)
	}
	return s, nil
}

func joinURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

// applyHeaderTemplate sets the provider's extra headers, substituting the credential
func applyHeaderTemplate(req *http.Request, headers map[string]string, apiKey string) {
	for name, value := range headers {
		req.Header.Set(name, strings.ReplaceAll(value, "{api_key}", apiKey))
	}
}
