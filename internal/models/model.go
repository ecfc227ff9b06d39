package models

import "github.com/shopspring/decimal"

// Model is a sellable model offered by a provider (models table).
type Model struct {
	ModelID             string  `db:"model_id" json:"model_id"`
	ProviderID          string  `db:"provider_id" json:"provider_id"`
	InputPricePerToken  float64 `db:"input_price_per_token" json:"input_price_per_token"`
	OutputPricePerToken float64 `db:"output_price_per_token" json:"output_price_per_token"`
	MaxTokens           int     `db:"max_tokens" json:"max_tokens"`
	ContextWindow       int     `db:"context_window" json:"context_window"`
	IsDefault           bool    `db:"is_default" json:"is_default"`
	Enabled             bool    `db:"enabled" json:"enabled"`

	CreatedAt Millis `db:"created_at" json:"created_at"`
	UpdatedAt Millis `db:"updated_at" json:"updated_at"`
}

// Cost prices a call from its token counts.
func (m *Model) Cost(promptTokens, completionTokens int) decimal.Decimal {
	in := decimal.NewFromFloat(m.InputPricePerToken).Mul(decimal.NewFromInt(int64(promptTokens)))
	out := decimal.NewFromFloat(m.OutputPricePerToken).Mul(decimal.NewFromInt(int64(completionTokens)))
	return in.Add(out)
}
