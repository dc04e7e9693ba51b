package postgres

import (
	"context"
	"database/sql"

	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

// schema statements run in order and are individually idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS experiments (
		id             UUID PRIMARY KEY,
		publisher_id   TEXT NOT NULL,
		name           TEXT NOT NULL,
		objective      TEXT,
		status         TEXT NOT NULL,
		mirror_percent INT  NOT NULL,
		seed           TEXT NOT NULL,
		guardrails     JSONB NOT NULL,
		activated_at   TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_experiments_publisher ON experiments (publisher_id, status)`,

	`CREATE TABLE IF NOT EXISTS mappings (
		id                    UUID PRIMARY KEY,
		experiment_id         UUID NOT NULL REFERENCES experiments (id),
		incumbent_network     TEXT NOT NULL,
		incumbent_instance_id TEXT NOT NULL,
		waterfall_position    INT  NOT NULL,
		incumbent_ecpm_micros BIGINT,
		adapter_id            TEXT,
		status                TEXT NOT NULL,
		confidence            DOUBLE PRECISION NOT NULL,
		conflict_reason       TEXT,
		created_at            TIMESTAMPTZ NOT NULL,
		updated_at            TIMESTAMPTZ NOT NULL,
		UNIQUE (experiment_id, incumbent_network, incumbent_instance_id)
	)`,

	`CREATE TABLE IF NOT EXISTS import_batches (
		id            UUID PRIMARY KEY,
		experiment_id UUID NOT NULL REFERENCES experiments (id),
		source        TEXT NOT NULL,
		status        TEXT NOT NULL,
		row_count     INT  NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS guardrail_snapshots (
		id             UUID PRIMARY KEY,
		experiment_id  UUID NOT NULL REFERENCES experiments (id),
		captured_at    TIMESTAMPTZ NOT NULL,
		arm            TEXT NOT NULL,
		impressions    BIGINT NOT NULL,
		fills          BIGINT NOT NULL,
		revenue_micros BIGINT NOT NULL,
		latency_p50_ms BIGINT NOT NULL,
		latency_p95_ms BIGINT NOT NULL,
		error_rate_pct DOUBLE PRECISION NOT NULL,
		ivt_rate_pct   DOUBLE PRECISION NOT NULL,
		window_minutes INT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_experiment_time ON guardrail_snapshots (experiment_id, captured_at)`,

	`CREATE TABLE IF NOT EXISTS events (
		id            UUID PRIMARY KEY,
		experiment_id UUID NOT NULL,
		event_type    TEXT NOT NULL,
		payload       JSONB,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_experiment_time ON events (experiment_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS audit_records (
		id           UUID PRIMARY KEY,
		actor_id     TEXT NOT NULL,
		actor_type   TEXT NOT NULL,
		action       TEXT NOT NULL,
		entity_type  TEXT NOT NULL,
		entity_id    TEXT NOT NULL,
		before_state JSONB,
		after_state  JSONB,
		metadata     JSONB,
		checksum     TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_records (created_at)`,
}

// Migrate applies the schema. Statements are idempotent so repeated runs
// are safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return domain.Transient("apply schema", err)
		}
	}
	log.Info("database schema up to date")
	return nil
}
