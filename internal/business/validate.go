package business

import (
	"fmt"
	"strings"
)

// Validate checks the context and returns a *ValidationError describing every problem.
func (c *Context) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.DeviceID) == "" {
		add("device_id is required")
	}

	ai := c.AI
	if ai.Temperature < 0 || ai.Temperature > 2 {
		add("ai.temperature must be within [0, 2], got %v", ai.Temperature)
	}
	if ai.MaxTokens < 0 {
		add("ai.max_tokens must not be negative")
	}
	if ai.MemoryExpiryMinutes < 0 {
		add("ai.memory_expiry_minutes must not be negative")
	}
	if ai.MaxHistoryLength < 0 {
		add("ai.max_history_length must not be negative")
	}
	if ai.RequireTrigger && !ai.AutoReply && len(nonBlank(ai.Triggers)) == 0 {
		add("ai.triggers must not be empty when require_trigger is set")
	}

	p := c.Profile
	switch p.BrandVoice {
	case "", BrandVoiceCasual, BrandVoiceFormal, BrandVoiceExpert, BrandVoiceLuxury:
	default:
		add("profile.brand_voice %q is not one of casual, formal, expert, luxury", p.BrandVoice)
	}
	switch p.PrimaryGoal {
	case "", GoalConversion, GoalLeads, GoalSupport:
	default:
		add("profile.primary_goal %q is not one of conversion, leads, support", p.PrimaryGoal)
	}
	for i, item := range p.Catalog() {
		if item.ImageID != "" && strings.TrimSpace(item.Name) == "" {
			add("product %d has an image but no name", i)
		}
	}

	h := c.OperatingHours
	if h.Enabled {
		if _, err := h.Location(); err != nil {
			add("operating_hours.timezone %q: %v", h.Timezone, err)
		}
		for key, day := range h.Days {
			if _, ok := weekdayKeys[strings.ToLower(key)]; !ok {
				add("operating_hours.days: unknown weekday %q", key)
				continue
			}
			if !day.Open {
				continue
			}
			if _, _, err := day.bounds(); err != nil {
				add("operating_hours.days.%s: %v", key, err)
			}
		}
	}

	l := c.Limits
	if l.DailyUSD < 0 || l.MonthlyUSD < 0 {
		add("limits must not be negative")
	}
	if l.AlertThreshold < 0 || l.AlertThreshold > 1 {
		add("limits.alert_threshold must be within [0, 1], got %v", l.AlertThreshold)
	}

	if len(problems) > 0 {
		return &ValidationError{DeviceID: c.DeviceID, Problems: problems}
	}
	return nil
}

func nonBlank(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
