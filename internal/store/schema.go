package store

import (
	"context"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS metrics (
		id         BIGSERIAL PRIMARY KEY,
		timestamp  TIMESTAMPTZ NOT NULL,
		heart_rate DOUBLE PRECISION NOT NULL,
		steps      INTEGER NOT NULL,
		status     TEXT NOT NULL DEFAULT 'new' CHECK (status IN ('new', 'processed'))
	)`,
	`CREATE INDEX IF NOT EXISTS metrics_status_ts_idx ON metrics (status, timestamp)`,
	`CREATE TABLE IF NOT EXISTS agent_log (
		id         BIGSERIAL PRIMARY KEY,
		timestamp  TIMESTAMPTZ NOT NULL,
		agent_name TEXT NOT NULL,
		message    TEXT NOT NULL,
		priority   TEXT NOT NULL DEFAULT 'info' CHECK (priority IN ('info', 'warning', 'critical'))
	)`,
	`CREATE INDEX IF NOT EXISTS agent_log_ts_idx ON agent_log (timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS approvals (
		id                 BIGSERIAL PRIMARY KEY,
		timestamp          TIMESTAMPTZ NOT NULL,
		agent_name         TEXT NOT NULL,
		action_description TEXT NOT NULL,
		priority           TEXT NOT NULL DEFAULT 'critical' CHECK (priority IN ('warning', 'critical')),
		metric_id          BIGINT REFERENCES metrics (id),
		status             TEXT NOT NULL DEFAULT 'pending'
		                   CHECK (status IN ('pending', 'approved', 'rejected', 'escalating', 'escalated')),
		claimed_at         TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS approvals_status_ts_idx ON approvals (status, timestamp)`,
	`CREATE TABLE IF NOT EXISTS operators (
		id           BIGSERIAL PRIMARY KEY,
		name         TEXT NOT NULL UNIQUE,
		token_prefix TEXT NOT NULL UNIQUE,
		token_hash   TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables and indexes if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Migrate: %w", err)
		}
	}
	return nil
}
