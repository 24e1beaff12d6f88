package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// ErrIllegalTransition is returned when a requested approval status change is
// not an edge of the approval state machine.
var ErrIllegalTransition = errors.New("illegal approval transition")

const approvalColumns = `id, timestamp, agent_name, action_description, priority, metric_id, status, claimed_at`

// CreateApproval inserts an approval request and returns its id.
// Empty Status and Priority default to pending and critical.
func (s *Store) CreateApproval(ctx context.Context, a *model.ApprovalRequest) (int64, error) {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	status := a.Status
	if status == "" {
		status = model.ApprovalPending
	}
	priority := a.Priority
	if priority == "" {
		priority = model.PriorityCritical
	}

	var id int64
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO approvals (timestamp, agent_name, action_description, priority, metric_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		ts, a.AgentName, a.ActionDescription, string(priority), a.MetricID, string(status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreateApproval: %w", err)
	}
	return id, nil
}

// ListApprovals returns all approval requests with the given status, oldest first.
func (s *Store) ListApprovals(ctx context.Context, status model.ApprovalStatus) ([]model.ApprovalRequest, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+approvalColumns+`
		FROM approvals WHERE status = $1
		ORDER BY timestamp ASC, id ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("ListApprovals: %w", err)
	}
	defer rows.Close()

	var approvals []model.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("ListApprovals: %w", err)
		}
		approvals = append(approvals, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListApprovals: %w", err)
	}
	return approvals, nil
}

// GetApproval returns an approval request by id, or nil if not found.
func (s *Store) GetApproval(ctx context.Context, id int64) (*model.ApprovalRequest, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id)
	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetApproval: %w", err)
	}
	return a, nil
}

// TransitionApproval moves a request from one status to another with a
// conditional write. Returns false when the row is not currently in `from`,
// i.e. another process already moved it. Entering 'escalating' stamps
// claimed_at with the database clock; every other target clears it.
func (s *Store) TransitionApproval(ctx context.Context, id int64, from, to model.ApprovalStatus) (bool, error) {
	if !model.CanTransition(from, to) {
		return false, fmt.Errorf("TransitionApproval: %w: %s -> %s", ErrIllegalTransition, from, to)
	}

	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE approvals SET status = $3, claimed_at = CASE WHEN $4::boolean THEN now() END
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), to == model.ApprovalEscalating,
	)
	if err != nil {
		return false, fmt.Errorf("TransitionApproval: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("TransitionApproval: %w", err)
	}
	return n == 1, nil
}

// ReclaimStaleClaims returns requests stuck in 'escalating' for longer than
// olderThan to 'approved' and reports how many were reclaimed. Age is
// measured against the database clock so worker clock skew cannot expire a
// live claim early.
func (s *Store) ReclaimStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE approvals SET status = 'approved', claimed_at = NULL
		WHERE status = 'escalating'
		  AND claimed_at < now() - make_interval(secs => $1::double precision)`,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("ReclaimStaleClaims: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ReclaimStaleClaims: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (*model.ApprovalRequest, error) {
	var a model.ApprovalRequest
	var priority, status string
	var metricID sql.NullInt64
	var claimedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.Timestamp, &a.AgentName, &a.ActionDescription,
		&priority, &metricID, &status, &claimedAt); err != nil {
		return nil, err
	}
	a.Priority = model.Priority(priority)
	a.Status = model.ApprovalStatus(status)
	a.MetricID = metricID.Int64
	if claimedAt.Valid {
		t := claimedAt.Time
		a.ClaimedAt = &t
	}
	return &a, nil
}
