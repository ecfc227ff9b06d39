package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ai_gateway/internal/models"
)

// Seed is the provider catalog read by the bootstrap tool
type Seed struct {
	Providers []SeedProvider `yaml:"providers"`
}

type SeedProvider struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Enabled    bool              `yaml:"enabled"`
	BaseURL    string            `yaml:"base_url"`
	WireFormat string            `yaml:"wire_format"`
	Headers    map[string]string `yaml:"headers"`
	Priority   int               `yaml:"priority"`
	Models     []SeedModel       `yaml:"models"`
}

type SeedModel struct {
	ModelID             string  `yaml:"model_id"`
	InputPricePerToken  float64 `yaml:"input_price_per_token"`
	OutputPricePerToken float64 `yaml:"output_price_per_token"`
	MaxTokens           int     `yaml:"max_tokens"`
	ContextWindow       int     `yaml:"context_window"`
	IsDefault           bool    `yaml:"is_default"`
	Enabled             bool    `yaml:"enabled"`
}

// ParseSeed decodes and checks a seed document
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}

	seen := make(map[string]bool)
	for _, p := range seed.Providers {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("seed provider without id")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate seed provider %q", p.ID)
		}
		seen[p.ID] = true
		if !models.WireFormat(p.WireFormat).Valid() {
			return nil, fmt.Errorf("provider %q: unknown wire format %q", p.ID, p.WireFormat)
		}
		if p.BaseURL == "" {
			return nil, fmt.Errorf("provider %q: base_url is required", p.ID)
		}
		for _, m := range p.Models {
			if m.ModelID == "" {
				return nil, fmt.Errorf("provider %q: model without model_id", p.ID)
			}
			if m.InputPricePerToken < 0 || m.OutputPricePerToken < 0 {
				return nil, fmt.Errorf("provider %q model %q: negative price", p.ID, m.ModelID)
			}
		}
	}
	return &seed, nil
}

// SeedResult counts what ApplySeed wrote
type SeedResult struct {
	Providers   int
	Models      int
	Credentials []string
}

// ApplySeed upserts the seed's providers and models. For every seeded provider
// whose credential variable is set in env, the key is encrypted and stored.
func ApplySeed(ctx context.Context, providers *ProviderRepository, modelRepo *ModelRepository, seed *Seed, env func(string) string, envVarFor func(string) string) (*SeedResult, error) {
	if env == nil {
		env = os.Getenv
	}
	result := &SeedResult{}

	for _, sp := range seed.Providers {
		p := &models.Provider{
			ID:         sp.ID,
			Name:       sp.Name,
			Enabled:    sp.Enabled,
			BaseURL:    sp.BaseURL,
			WireFormat: models.WireFormat(sp.WireFormat),
			Headers:    models.StringMap(sp.Headers),
			Priority:   sp.Priority,
		}
		if err := providers.Upsert(ctx, p); err != nil {
			return result, err
		}
		result.Providers++

		for _, sm := range sp.Models {
			m := &models.Model{
				ProviderID:          sp.ID,
				ModelID:             sm.ModelID,
				InputPricePerToken:  sm.InputPricePerToken,
				OutputPricePerToken: sm.OutputPricePerToken,
				MaxTokens:           sm.MaxTokens,
				ContextWindow:       sm.ContextWindow,
				IsDefault:           sm.IsDefault,
				Enabled:             sm.Enabled,
			}
			if err := modelRepo.Upsert(ctx, m); err != nil {
				return result, err
			}
			result.Models++
		}

		if envVarFor == nil {
			continue
		}
		key := env(envVarFor(sp.ID))
		if key == "" {
			continue
		}
		if err := providers.SetAPIKey(ctx, sp.ID, key); err != nil {
			return result, fmt.Errorf("failed to store credential for %q: %w", sp.ID, err)
		}
		result.Credentials = append(result.Credentials, sp.ID)
	}
	return result, nil
}
