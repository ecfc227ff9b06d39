package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
providers:
  - id: openai
    name: OpenAI
    enabled: true
    base_url: https://api.openai.com/v1
    wire_format: openai
    priority: 10
    models:
      - model_id: gpt-4o-mini
        input_price_per_token: 0.00000015
        output_price_per_token: 0.0000006
        max_tokens: 1024
        is_default: true
        enabled: true
  - id: claude
    name: Anthropic
    enabled: true
    base_url: https://api.anthropic.com/v1
    wire_format: anthropic
    priority: 20
    headers:
      anthropic-beta: tools-2024-04-04
    models:
      - model_id: claude-3-haiku
        enabled: true
`

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, seed.Providers, 2)
	assert.Equal(t, "tools-2024-04-04", seed.Providers[1].Headers["anthropic-beta"])
	assert.InDelta(t, 0.00000015, seed.Providers[0].Models[0].InputPricePerToken, 1e-15)

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "missing id", yaml: "providers:\n  - base_url: x\n    wire_format: openai\n", want: "without id"},
		{name: "duplicate", yaml: "providers:\n  - {id: a, base_url: x, wire_format: openai}\n  - {id: a, base_url: x, wire_format: openai}\n", want: "duplicate"},
		{name: "bad format", yaml: "providers:\n  - {id: a, base_url: x, wire_format: soap}\n", want: "wire format"},
		{name: "no base url", yaml: "providers:\n  - {id: a, wire_format: gemini}\n", want: "base_url"},
		{name: "negative price", yaml: "providers:\n  - {id: a, base_url: x, wire_format: openai, models: [{model_id: m, input_price_per_token: -1}]}\n", want: "negative"},
		{name: "not yaml", yaml: "providers: [", want: "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplySeed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	enc, err := NewEncryptionFromSecret("seed-secret")
	require.NoError(t, err)
	providerRepo := db.NewProviderRepository(enc)
	modelRepo := db.NewModelRepository()

	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	env := map[string]string{"OPENAI_API_KEY": "sk-from-env"}
	envVar := func(id string) string { return strings.ToUpper(id) + "_API_KEY" }

	result, err := ApplySeed(ctx, providerRepo, modelRepo, seed, func(k string) string { return env[k] }, envVar)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Providers)
	assert.Equal(t, 2, result.Models)
	assert.Equal(t, []string{"openai"}, result.Credentials)

	key, err := providerRepo.APIKey(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", key)

	_, err = providerRepo.APIKey(ctx, "claude")
	assert.ErrorIs(t, err, ErrCredentialNotStored)

	m, err := modelRepo.Get(ctx, "openai", "gpt-4o-mini")
	require.NoError(t, err)
	assert.True(t, m.IsDefault)
	assert.Equal(t, 1024, m.MaxTokens)

	// Applying twice updates in place.
	result, err = ApplySeed(ctx, providerRepo, modelRepo, seed, func(string) string { return "" }, envVar)
	require.NoError(t, err)
	assert.Empty(t, result.Credentials)
	list, err := providerRepo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
