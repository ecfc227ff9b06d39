package business

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dealerYAML = `
ai:
  enabled: true
  provider: openai
  model: gpt-4o-mini
  temperature: 0.7
  memory_enabled: true
  memory_expiry_minutes: 60
  image_attachments: true
profile:
  business_name: Maju Motor
  business_type: car dealership
  brand_voice: casual
  primary_goal: conversion
  language: Indonesian
  product_catalog:
    - name: Honda Civic
      price: Rp 550.000.000
      image_id: abc123
  handover_triggers: [admin, manusia]
  boundaries_enabled: true
operating_hours:
  enabled: true
  timezone: Asia/Jakarta
  days:
    monday: {open: true, start: "09:00", end: "17:00"}
limits:
  daily_usd: 5
  monthly_usd: 100
`

func TestFileStore_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dev-1.yaml"), []byte(dealerYAML), 0o600))

	store := NewFileStore(dir, 0.75)
	c, err := store.Load(context.Background(), "dev-1")
	require.NoError(t, err)

	assert.Equal(t, "dev-1", c.DeviceID)
	assert.True(t, c.AI.Enabled)
	assert.Equal(t, DefaultMaxHistoryLength, c.AI.MaxHistoryLength)
	assert.Equal(t, 0.75, c.Limits.AlertThreshold)
	assert.Equal(t, BrandVoiceCasual, c.Profile.BrandVoice)
	require.Len(t, c.Profile.ProductCatalog, 1)
	assert.Equal(t, "abc123", c.Profile.ProductCatalog[0].ImageID)
	assert.Equal(t, "09:00", c.OperatingHours.Days["monday"].Start)
}

func TestFileStore_NotFound(t *testing.T) {
	_, err := NewFileStore(t.TempDir(), 0.8).Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrContextNotFound)
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	_, err := NewFileStore(t.TempDir(), 0.8).Load(context.Background(), "../etc/passwd")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestParse_ValidationErrors(t *testing.T) {
	doc := `
ai:
  temperature: 3
  require_trigger: true
profile:
  brand_voice: shouty
operating_hours:
  enabled: true
  timezone: Nowhere/Land
  days:
    funday: {open: true, start: "09:00", end: "10:00"}
limits:
  daily_usd: -1
`
	_, err := Parse([]byte(doc), "dev-2", 0.8)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "dev-2", verr.DeviceID)
	assert.Len(t, verr.Problems, 6)
	assert.Contains(t, err.Error(), "brand_voice")
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("ai: [unterminated"), "dev-3", 0.8)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestProfile_CatalogOrder(t *testing.T) {
	p := Profile{
		ProductKnowledge: []Product{{Name: "A"}},
		ProductCatalog:   []Product{{Name: "B"}, {Name: "C"}},
	}
	names := []string{}
	for _, item := range p.Catalog() {
		names = append(names, item.Name)
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)
}
