package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetForTest(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		prev, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetForTest(t, "PROVIDER_REQUEST_TIMEOUT", "COST_FAIL_OPEN_ON_LEDGER_ERROR", "LOCAL", "LOG_LEVEL",
		"COST_TOTALS_BACKEND", "USAGE_QUEUE_BACKEND", "BUSINESS_CONTEXT_SOURCE", "COST_TIMEZONE",
		"COST_DEFAULT_ALERT_THRESHOLD", "SCORING_THRESHOLD")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Provider.RequestTimeout)
	assert.True(t, cfg.Cost.FailOpenOnLedgerError)
	assert.Equal(t, 0.8, cfg.Cost.DefaultAlertThreshold)
	assert.Equal(t, "ledger", cfg.Cost.TotalsBackend)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 40.0, cfg.Scoring.Threshold)
	assert.Equal(t, 50.0, cfg.Scoring.NameInResponse)
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	unsetForTest(t, "JWT_SECRET", "SCORING_THRESHOLD", "LOCAL", "LOG_LEVEL")
	t.Setenv("PROVIDER_REQUEST_TIMEOUT", "10s")

	path := filepath.Join(t.TempDir(), "test.env")
	content := "JWT_SECRET=from-file\nPROVIDER_REQUEST_TIMEOUT=90s\nSCORING_THRESHOLD=55\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []byte("from-file"), cfg.JWTSecret)
	assert.Equal(t, 10*time.Second, cfg.Provider.RequestTimeout)
	assert.Equal(t, 55.0, cfg.Scoring.Threshold)
}

func TestLoad_LocalForcesDebug(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LOCAL", "true")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			JWTSecret: []byte("s"),
			Provider:  ProviderConfig{RequestTimeout: time.Second},
			Cost:      CostConfig{DefaultAlertThreshold: 0.8, Timezone: "UTC", TotalsBackend: "ledger"},
			Usage:     UsageConfig{QueueBackend: "memory"},
			Business:  BusinessConfig{Source: "file"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing secret", func(c *Config) { c.JWTSecret = nil }},
		{"zero timeout", func(c *Config) { c.Provider.RequestTimeout = 0 }},
		{"threshold above one", func(c *Config) { c.Cost.DefaultAlertThreshold = 1.5 }},
		{"bad timezone", func(c *Config) { c.Cost.Timezone = "Mars/Olympus" }},
		{"redis totals without redis", func(c *Config) { c.Cost.TotalsBackend = "redis" }},
		{"async redis queue without redis", func(c *Config) { c.Usage.Async = true; c.Usage.QueueBackend = "redis" }},
		{"unknown context source", func(c *Config) { c.Business.Source = "s3" }},
		{"journal without stamp", func(c *Config) { c.Journal.File = "/var/log/exchanges.jsonl" }},
	}

	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
