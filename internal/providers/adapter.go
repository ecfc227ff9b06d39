package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ai_gateway/internal/utils"
)

const (
	// DefaultRequestTimeout bounds a single provider call
	DefaultRequestTimeout = 30 * time.Second

	maxErrorBodyLength = 512
	maxResponseBody    = 8 << 20
)

// TargetResolver picks the provider and model for a call; implemented by Registry.
type TargetResolver interface {
	Resolve(ctx context.Context, providerID, modelID string) (*Target, error)
}

// Adapter executes chat completions against whichever provider the options select.
type Adapter struct {
	targets     TargetResolver
	credentials *CredentialResolver
	client      *http.Client
	logger      *utils.Logger
}

// NewAdapter creates an adapter with its own HTTP client. A non-positive
// timeout uses DefaultRequestTimeout.
func NewAdapter(targets TargetResolver, credentials *CredentialResolver, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Adapter{
		targets:     targets,
		credentials: credentials,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: utils.NewLogger("provider-adapter"),
	}
}

// ChatCompletion sends messages to the selected provider and returns the normalized result.
//
// Errors are *ConfigurationError or *CredentialError when nothing was sent,
// *TransportError when the provider could not be reached, and *UpstreamError
// when it answered with a failure. There is no retry.
func (a *Adapter) ChatCompletion(ctx context.Context, messages []Message, opts ChatOptions) (*Result, error) {
	target, err := a.targets.Resolve(ctx, opts.Provider, opts.Model)
	if err != nil {
		return nil, err
	}
	apiKey, err := a.credentials.Resolve(ctx, target.Provider.ID)
	if err != nil {
		return nil, err
	}

	providerID := target.Provider.ID
	modelID := target.Model.ModelID
	strategy := target.Strategy

	if opts.MaxTokens <= 0 {
		opts.MaxTokens = target.Model.MaxTokens
	}
	_, canStream := strategy.(StreamParser)
	if !canStream {
		opts.Stream = false
	}

	body, err := strategy.BuildPayload(messages, modelID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s payload: %w", strategy.Format(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strategy.Endpoint(target.Provider.BaseURL, modelID, apiKey), bytes.NewReader(body))
	if err != nil {
		return nil, &ConfigurationError{Provider: providerID, Model: modelID, Reason: fmt.Sprintf("invalid base url: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	strategy.Authenticate(req, apiKey)
	applyHeaderTemplate(req, target.Provider.Headers, apiKey)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		err = redactURLError(err)
		a.logger.Warn("Provider request failed", "provider", providerID, "model", modelID, "error", err)
		return nil, &TransportError{Provider: providerID, Model: modelID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		upstream := &UpstreamError{
			Provider:   providerID,
			Model:      modelID,
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(raw),
		}
		a.logger.Warn("Provider returned an error", "provider", providerID, "model", modelID, "status", resp.StatusCode, "message", upstream.Message)
		return nil, upstream
	}

	var result *Result
	if opts.Stream {
		result, err = strategy.(StreamParser).ParseStream(resp.Body)
	} else {
		var raw []byte
		raw, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, &TransportError{Provider: providerID, Model: modelID, Err: err}
		}
		result, err = strategy.ParseResponse(raw)
	}
	if err != nil {
		return nil, &UpstreamError{Provider: providerID, Model: modelID, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	result.Provider = providerID
	result.Model = modelID

	a.logger.Debug("Provider call completed",
		"provider", providerID,
		"model", modelID,
		"latency", time.Since(start),
		"prompt_tokens", result.Usage.PromptTokens,
		"completion_tokens", result.Usage.CompletionTokens,
	)
	return result, nil
}

// redactURLError masks credentials carried in the request URL (the gemini
// key query parameter) so they never reach error text, logs or the ledger.
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	redacted := *urlErr
	redacted.URL = redactURL(urlErr.URL)
	return &redacted
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid url]"
	}
	q := u.Query()
	if !q.Has("key") {
		return raw
	}
	q.Set("key", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}

// upstreamMessage extracts error.message (or a bare string error) from a
// provider error body, falling back to the trimmed raw body
func upstreamMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &detail); err == nil && detail.Message != "" {
			return detail.Message
		}
		var text string
		if err := json.Unmarshal(envelope.Error, &text); err == nil && text != "" {
			return text
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBodyLength {
		msg = msg[:maxErrorBodyLength]
	}
	if msg == "" {
		msg = "empty response body"
	}
	return msg
}
