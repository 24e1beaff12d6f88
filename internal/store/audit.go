package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// AppendAudit writes one agent_log row and returns its id.
func (s *Store) AppendAudit(ctx context.Context, e *model.AuditEntry) (int64, error) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	priority := e.Priority
	if priority == "" {
		priority = model.PriorityInfo
	}

	var id int64
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO agent_log (timestamp, agent_name, message, priority)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		ts, e.AgentName, e.Message, string(priority),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("AppendAudit: %w", err)
	}
	return id, nil
}

// ListAudit returns the most recent `limit` entries, newest first.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, timestamp, agent_name, message, priority
		FROM agent_log ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListAudit: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var priority string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.AgentName, &e.Message, &priority); err != nil {
			return nil, fmt.Errorf("ListAudit: %w", err)
		}
		e.Priority = model.Priority(priority)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAudit: %w", err)
	}
	return entries, nil
}
