package storage

// schema is valid for both PostgreSQL and SQLite. Timestamps are BIGINT unix milliseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL DEFAULT '',
		enabled           BOOLEAN NOT NULL DEFAULT TRUE,
		base_url          TEXT NOT NULL,
		wire_format       TEXT NOT NULL,
		headers           TEXT,
		priority          INTEGER NOT NULL DEFAULT 100,
		encrypted_api_key TEXT,
		created_at        BIGINT NOT NULL,
		updated_at        BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS models (
		provider_id            TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		model_id               TEXT NOT NULL,
		input_price_per_token  DOUBLE PRECISION NOT NULL DEFAULT 0,
		output_price_per_token DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_tokens             INTEGER NOT NULL DEFAULT 0,
		context_window         INTEGER NOT NULL DEFAULT 0,
		is_default             BOOLEAN NOT NULL DEFAULT FALSE,
		enabled                BOOLEAN NOT NULL DEFAULT TRUE,
		created_at             BIGINT NOT NULL,
		updated_at             BIGINT NOT NULL,
		PRIMARY KEY (provider_id, model_id)
	)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		id                TEXT PRIMARY KEY,
		device_id         TEXT NOT NULL,
		provider          TEXT NOT NULL,
		model             TEXT NOT NULL,
		prompt_tokens     INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd          DOUBLE PRECISION NOT NULL DEFAULT 0,
		success           BOOLEAN NOT NULL,
		response_time_ms  INTEGER NOT NULL DEFAULT 0,
		error_message     TEXT,
		created_at        BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_records_device_time ON usage_records (device_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS cost_alerts (
		id           TEXT PRIMARY KEY,
		device_id    TEXT NOT NULL,
		alert_type   TEXT NOT NULL,
		period       TEXT NOT NULL,
		current_cost DOUBLE PRECISION NOT NULL,
		limit_amount DOUBLE PRECISION NOT NULL,
		resolved     BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at  BIGINT,
		created_at   BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_cost_alerts_open
		ON cost_alerts (device_id, alert_type, period) WHERE resolved = FALSE`,
	`CREATE TABLE IF NOT EXISTS message_history (
		id         TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL,
		chat_id    TEXT NOT NULL,
		direction  TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_message_history_chat_time ON message_history (device_id, chat_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS business_contexts (
		device_id       TEXT PRIMARY KEY,
		ai_settings     TEXT NOT NULL,
		profile         TEXT NOT NULL,
		operating_hours TEXT NOT NULL,
		limits          TEXT NOT NULL,
		updated_at      BIGINT NOT NULL
	)`,
}
