package providers

import (
	"context"
	"os"
	"strings"

	"ai_gateway/internal/models"
	"ai_gateway/internal/utils"
)

// CredentialStore returns a provider's administered API key; implemented by storage.ProviderRepository.
type CredentialStore interface {
	APIKey(ctx context.Context, providerID string) (string, error)
}

// EnvLookup reads a named environment value
type EnvLookup func(key string) string

var wellKnownEnvVars = map[models.WireFormat]string{
	models.WireFormatOpenAI:    "OPENAI_API_KEY",
	models.WireFormatAnthropic: "ANTHROPIC_API_KEY",
	models.WireFormatGemini:    "GEMINI_API_KEY",
}

// EnvVarFor names the environment variable consulted for a provider's key.
// Providers whose id is the wire format name use the vendor's usual variable;
// any other provider uses <PROVIDER_ID>_API_KEY.
func EnvVarFor(providerID string) string {
	if name, ok := wellKnownEnvVars[models.WireFormat(strings.ToLower(providerID))]; ok {
		return name
	}
	id := strings.ToUpper(providerID)
	id = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(id)
	return id + "_API_KEY"
}

// CredentialResolver finds the API key for a provider: stored key first, then environment.
type CredentialResolver struct {
	store  CredentialStore
	env    EnvLookup
	logger *utils.Logger
}

// NewCredentialResolver creates a resolver. A nil store skips straight to the
// environment; a nil env uses os.Getenv.
func NewCredentialResolver(store CredentialStore, env EnvLookup) *CredentialResolver {
	if env == nil {
		env = os.Getenv
	}
	return &CredentialResolver{
		store:  store,
		env:    env,
		logger: utils.NewLogger("credentials"),
	}
}

// Resolve returns the key for providerID or a *CredentialError
func (c *CredentialResolver) Resolve(ctx context.Context, providerID string) (string, error) {
	if c.store != nil {
		key, err := c.store.APIKey(ctx, providerID)
		if err == nil && key != "" {
			return key, nil
		}
		if err != nil {
			c.logger.Debug("Stored credential unavailable, trying environment", "provider", providerID, "error", err)
		}
	}

	envVar := EnvVarFor(providerID)
	if key := strings.TrimSpace(c.env(envVar)); key != "" {
		return key, nil
	}
	return "", &CredentialError{Provider: providerID, EnvVar: envVar}
}
