// Package business holds the per-device business context the assistant speaks for:
// AI switches, the business profile rendered into the system prompt, operating
// hours and spend limits. Contexts are typed value objects built once at the store
// boundary (YAML file or database row) and validated there.
package business

import "time"

// BrandVoice is the tone the assistant writes in.
type BrandVoice string

const (
	BrandVoiceCasual BrandVoice = "casual"
	BrandVoiceFormal BrandVoice = "formal"
	BrandVoiceExpert BrandVoice = "expert"
	BrandVoiceLuxury BrandVoice = "luxury"
)

// Goal is what the conversation should steer towards.
type Goal string

const (
	GoalConversion Goal = "conversion"
	GoalLeads      Goal = "leads"
	GoalSupport    Goal = "support"
)

const (
	DefaultMaxHistoryLength = 10
	DefaultAlertThreshold   = 0.8
)

// HandoverSentinel is the token the assistant emits to ask for a human operator.
const HandoverSentinel = "[HANDOVER]"

// Context is everything the gateway knows about one device's business.
type Context struct {
	DeviceID       string         `yaml:"device_id" json:"device_id"`
	AI             AISettings     `yaml:"ai" json:"ai"`
	Profile        Profile        `yaml:"profile" json:"profile"`
	OperatingHours OperatingHours `yaml:"operating_hours" json:"operating_hours"`
	Limits         CostLimits     `yaml:"limits" json:"limits"`
}

// AISettings are the per-device assistant switches.
type AISettings struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	Provider    string  `yaml:"provider" json:"provider"`
	Model       string  `yaml:"model" json:"model"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `yaml:"temperature" json:"temperature"`

	AutoReply      bool     `yaml:"auto_reply" json:"auto_reply"`
	RequireTrigger bool     `yaml:"require_trigger" json:"require_trigger"`
	Triggers       []string `yaml:"triggers" json:"triggers"`

	MemoryEnabled       bool       `yaml:"memory_enabled" json:"memory_enabled"`
	MemoryExpiryMinutes int        `yaml:"memory_expiry_minutes" json:"memory_expiry_minutes"`
	MaxHistoryLength    int        `yaml:"max_history_length" json:"max_history_length"`
	LastMemoryClearedAt *time.Time `yaml:"last_memory_cleared_at" json:"last_memory_cleared_at,omitempty"`

	ImageAttachments bool `yaml:"image_attachments" json:"image_attachments"`
}

// Profile is the business description rendered into the system prompt.
type Profile struct {
	BusinessName      string       `yaml:"business_name" json:"business_name"`
	BusinessType      string       `yaml:"business_type" json:"business_type"`
	BrandVoice        BrandVoice   `yaml:"brand_voice" json:"brand_voice"`
	PrimaryGoal       Goal         `yaml:"primary_goal" json:"primary_goal"`
	Language          string       `yaml:"language" json:"language"`
	ProductKnowledge  []Product    `yaml:"product_knowledge" json:"product_knowledge"`
	ProductCatalog    []Product    `yaml:"product_catalog" json:"product_catalog"`
	FAQ               []FAQEntry   `yaml:"faq" json:"faq"`
	UpsellStrategies  []string     `yaml:"upsell_strategies" json:"upsell_strategies"`
	ObjectionHandling []Objection  `yaml:"objection_handling" json:"objection_handling"`
	BoundariesEnabled bool         `yaml:"boundaries_enabled" json:"boundaries_enabled"`
	HandoverTriggers  []string     `yaml:"handover_triggers" json:"handover_triggers"`
	SalesScript       []ScriptStep `yaml:"sales_script" json:"sales_script"`
	CustomRules       []string     `yaml:"custom_rules" json:"custom_rules"`
}

// Product is a knowledge or catalog item. ImageID references a stored media file.
type Product struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Price       string `yaml:"price" json:"price"`
	ImageID     string `yaml:"image_id" json:"image_id"`
}

type FAQEntry struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

type Objection struct {
	Objection string `yaml:"objection" json:"objection"`
	Response  string `yaml:"response" json:"response"`
}

type ScriptStep struct {
	Stage  string `yaml:"stage" json:"stage"`
	Script string `yaml:"script" json:"script"`
}

// OperatingHours restricts when the assistant answers. Days are keyed by
// lowercase English weekday name; a missing day is closed.
type OperatingHours struct {
	Enabled  bool                `yaml:"enabled" json:"enabled"`
	Timezone string              `yaml:"timezone" json:"timezone"`
	Days     map[string]DayHours `yaml:"days" json:"days"`
}

// DayHours is one weekday's window in "HH:MM" local time. End before Start wraps past midnight.
type DayHours struct {
	Open  bool   `yaml:"open" json:"open"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// CostLimits are the device's spend ceilings in USD; zero means unlimited.
type CostLimits struct {
	DailyUSD       float64 `yaml:"daily_usd" json:"daily_usd"`
	MonthlyUSD     float64 `yaml:"monthly_usd" json:"monthly_usd"`
	AlertThreshold float64 `yaml:"alert_threshold" json:"alert_threshold"`
}

// Catalog returns knowledge items followed by catalog items.
func (p *Profile) Catalog() []Product {
	items := make([]Product, 0, len(p.ProductKnowledge)+len(p.ProductCatalog))
	items = append(items, p.ProductKnowledge...)
	return append(items, p.ProductCatalog...)
}

// ApplyDefaults fills unset tunables. alertThreshold is used when the context sets none.
func (c *Context) ApplyDefaults(alertThreshold float64) {
	if c.AI.MaxHistoryLength <= 0 {
		c.AI.MaxHistoryLength = DefaultMaxHistoryLength
	}
	if c.Limits.AlertThreshold <= 0 {
		if alertThreshold <= 0 {
			alertThreshold = DefaultAlertThreshold
		}
		c.Limits.AlertThreshold = alertThreshold
	}
	if c.OperatingHours.Timezone == "" {
		c.OperatingHours.Timezone = "UTC"
	}
}
