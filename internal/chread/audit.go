package chread

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/storage"
)

// Reader provides read access to the ClickHouse audit_events mirror.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	conn, err := storage.OpenClickHouse(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the audit_events table.
type EventRow struct {
	EventID    string
	CycleID    string
	AuditID    int64
	Timestamp  time.Time
	AgentName  string
	Message    string
	Priority   string
	MetricID   int64
	ApprovalID int64
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	AgentName *string
	Priority  *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// whereClause builds the shared filter for list and summary queries.
func (p ListEventsParams) whereClause() (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if p.AgentName != nil {
		conditions = append(conditions, "agent_name = @agent_name")
		args = append(args, clickhouse.Named("agent_name", *p.AgentName))
	}
	if p.Priority != nil {
		conditions = append(conditions, "priority = @priority")
		args = append(args, clickhouse.Named("priority", *p.Priority))
	}
	if p.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *p.StartTime))
	}
	if p.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *p.EndTime))
	}
	return strings.Join(conditions, " AND "), args
}

// ListEvents returns paginated, filtered audit events (newest first) and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	where, args := params.whereClause()
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM audit_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT event_id, cycle_id, audit_id, timestamp, agent_name, message, priority, metric_id, approval_id "+
			"FROM audit_events WHERE %s ORDER BY timestamp DESC LIMIT %d OFFSET %d",
		where, params.PageSize, offset,
	)
	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.EventID, &e.CycleID, &e.AuditID, &e.Timestamp, &e.AgentName,
			&e.Message, &e.Priority, &e.MetricID, &e.ApprovalID); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListEvents rows: %w", err)
	}
	return events, int(total), nil
}

// SummaryRow is the event count for one agent/priority pair.
type SummaryRow struct {
	AgentName string
	Priority  string
	Count     uint64
}

// Summary counts audit events per agent and priority in the filtered window.
func (r *Reader) Summary(ctx context.Context, params ListEventsParams) ([]SummaryRow, error) {
	where, args := params.whereClause()
	query := fmt.Sprintf(
		"SELECT agent_name, priority, count() AS n FROM audit_events WHERE %s "+
			"GROUP BY agent_name, priority ORDER BY agent_name, priority",
		where,
	)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Summary: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var s SummaryRow
		if err := rows.Scan(&s.AgentName, &s.Priority, &s.Count); err != nil {
			return nil, fmt.Errorf("Summary scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Summary rows: %w", err)
	}
	return out, nil
}
