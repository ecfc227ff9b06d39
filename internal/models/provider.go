package models

import "database/sql"

// WireFormat names the request/response protocol a provider speaks.
type WireFormat string

const (
	WireFormatOpenAI    WireFormat = "openai"
	WireFormatAnthropic WireFormat = "anthropic"
	WireFormatGemini    WireFormat = "gemini"
)

// Valid reports whether f is one of the supported wire formats.
func (f WireFormat) Valid() bool {
	switch f {
	case WireFormatOpenAI, WireFormatAnthropic, WireFormatGemini:
		return true
	}
	return false
}

// Provider is an upstream AI vendor endpoint (providers table).
type Provider struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Enabled    bool       `db:"enabled" json:"enabled"`
	BaseURL    string     `db:"base_url" json:"base_url"`
	WireFormat WireFormat `db:"wire_format" json:"wire_format"`
	// Headers are added to every request; "{api_key}" is replaced with the resolved credential.
	Headers  StringMap `db:"headers" json:"headers,omitempty"`
	Priority int       `db:"priority" json:"priority"`

	EncryptedAPIKey sql.NullString `db:"encrypted_api_key" json:"-"`

	CreatedAt Millis `db:"created_at" json:"created_at"`
	UpdatedAt Millis `db:"updated_at" json:"updated_at"`
}
