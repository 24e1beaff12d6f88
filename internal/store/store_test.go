package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestAppendReading(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO metrics (timestamp, heart_rate, steps, status)")).
		WithArgs(ts, 72.5, 30).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.AppendReading(context.Background(), &model.MetricReading{Timestamp: ts, HeartRate: 72.5, Steps: 30})
	if err != nil {
		t.Fatalf("append reading: %v", err)
	}
	if id != 7 {
		t.Errorf("expected id 7, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListReadings_OrderedOldestFirst(t *testing.T) {
	s, mock := newMockStore(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "timestamp", "heart_rate", "steps", "status"}).
		AddRow(int64(1), t0, 100.0, 12, "new").
		AddRow(int64(2), t0.Add(time.Second), 130.0, 20, "new")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY timestamp ASC, id ASC")).
		WithArgs("new").
		WillReturnRows(rows)

	readings, err := s.ListReadings(context.Background(), model.ReadingNew)
	if err != nil {
		t.Fatalf("list readings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}
	if readings[0].ID != 1 || readings[1].HeartRate != 130.0 {
		t.Errorf("unexpected readings: %+v", readings)
	}
	if readings[0].Status != model.ReadingNew {
		t.Errorf("expected status new, got %s", readings[0].Status)
	}
}

func TestMarkReadingProcessed_ConditionalWrite(t *testing.T) {
	s, mock := newMockStore(t)
	query := regexp.QuoteMeta("UPDATE metrics SET status = 'processed' WHERE id = $1 AND status = 'new'")

	mock.ExpectExec(query).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.MarkReadingProcessed(context.Background(), 3)
	if err != nil || !ok {
		t.Fatalf("expected first mark to succeed, got ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkReadingProcessed(context.Background(), 3)
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if ok {
		t.Error("expected second mark to report no change")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecentReadings_ReturnsChronological(t *testing.T) {
	s, mock := newMockStore(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "timestamp", "heart_rate", "steps", "status"}).
		AddRow(int64(3), t0.Add(2*time.Second), 90.0, 10, "new").
		AddRow(int64(2), t0.Add(time.Second), 80.0, 10, "processed").
		AddRow(int64(1), t0, 70.0, 10, "processed")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY timestamp DESC, id DESC LIMIT $1")).
		WithArgs(3).
		WillReturnRows(rows)

	readings, err := s.RecentReadings(context.Background(), 3)
	if err != nil {
		t.Fatalf("recent readings: %v", err)
	}
	for i, want := range []int64{1, 2, 3} {
		if readings[i].ID != want {
			t.Errorf("position %d: expected id %d, got %d", i, want, readings[i].ID)
		}
	}
}

func TestCreateApproval_Defaults(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO approvals")).
		WithArgs(sqlmock.AnyArg(), "TrendAnalyzerAgent", "CRITICAL: test", "critical", int64(9), "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))

	id, err := s.CreateApproval(context.Background(), &model.ApprovalRequest{
		AgentName:         "TrendAnalyzerAgent",
		ActionDescription: "CRITICAL: test",
		MetricID:          9,
	})
	if err != nil {
		t.Fatalf("create approval: %v", err)
	}
	if id != 4 {
		t.Errorf("expected id 4, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetApproval_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	a, err := s.GetApproval(context.Background(), 99)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if a != nil {
		t.Errorf("expected nil approval, got %+v", a)
	}
}

func TestListApprovals_ScansClaim(t *testing.T) {
	s, mock := newMockStore(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	claimed := t0.Add(time.Minute)

	rows := sqlmock.NewRows([]string{"id", "timestamp", "agent_name", "action_description", "priority", "metric_id", "status", "claimed_at"}).
		AddRow(int64(1), t0, "TrendAnalyzerAgent", "desc", "critical", int64(5), "escalating", claimed)
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals WHERE status = $1")).
		WithArgs("escalating").
		WillReturnRows(rows)

	approvals, err := s.ListApprovals(context.Background(), model.ApprovalEscalating)
	if err != nil {
		t.Fatalf("list approvals: %v", err)
	}
	if len(approvals) != 1 {
		t.Fatalf("expected 1 approval, got %d", len(approvals))
	}
	a := approvals[0]
	if a.MetricID != 5 || a.Status != model.ApprovalEscalating || a.Priority != model.PriorityCritical {
		t.Errorf("unexpected approval: %+v", a)
	}
	if a.ClaimedAt == nil || !a.ClaimedAt.Equal(claimed) {
		t.Errorf("expected claimed_at %v, got %v", claimed, a.ClaimedAt)
	}
}

func TestTransitionApproval_Claim(t *testing.T) {
	s, mock := newMockStore(t)
	query := regexp.QuoteMeta("UPDATE approvals SET status = $3, claimed_at = CASE WHEN $4::boolean THEN now() END WHERE id = $1 AND status = $2")

	mock.ExpectExec(query).
		WithArgs(int64(1), "approved", "escalating", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs(int64(1), "approved", "escalating", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := s.TransitionApproval(context.Background(), 1, model.ApprovalApproved, model.ApprovalEscalating)
	if err != nil || !won {
		t.Fatalf("expected first claim to win, got won=%v err=%v", won, err)
	}
	won, err = s.TransitionApproval(context.Background(), 1, model.ApprovalApproved, model.ApprovalEscalating)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if won {
		t.Error("expected second claim to lose")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionApproval_LeavingEscalatingClearsClaim(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET status = $3")).
		WithArgs(int64(4), "escalating", "escalated", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := s.TransitionApproval(context.Background(), 4, model.ApprovalEscalating, model.ApprovalEscalated)
	if err != nil || !won {
		t.Fatalf("expected transition, got won=%v err=%v", won, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionApproval_IllegalNeverHitsDB(t *testing.T) {
	s, mock := newMockStore(t)

	cases := []struct{ from, to model.ApprovalStatus }{
		{model.ApprovalPending, model.ApprovalEscalated},
		{model.ApprovalRejected, model.ApprovalApproved},
		{model.ApprovalEscalated, model.ApprovalPending},
	}
	for _, tc := range cases {
		_, err := s.TransitionApproval(context.Background(), 1, tc.from, tc.to)
		if !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s: expected ErrIllegalTransition, got %v", tc.from, tc.to, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected DB calls: %v", err)
	}
}

func TestReclaimStaleClaims(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET status = 'approved', claimed_at = NULL WHERE status = 'escalating' AND claimed_at < now() - make_interval(secs => $1::double precision)")).
		WithArgs(float64(60)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.ReclaimStaleClaims(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 reclaimed, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendAudit_DefaultsToInfo(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO agent_log")).
		WithArgs(sqlmock.AnyArg(), "EscalationAgent", "hello", "info").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, err := s.AppendAudit(context.Background(), &model.AuditEntry{AgentName: "EscalationAgent", Message: "hello"})
	if err != nil {
		t.Fatalf("append audit: %v", err)
	}
	if id != 11 {
		t.Errorf("expected id 11, got %d", id)
	}
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO agent_log")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE metrics SET status = 'processed'")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithinTx(context.Background(), func(ctx context.Context) error {
		if _, err := s.AppendAudit(ctx, &model.AuditEntry{AgentName: "a", Message: "m", Priority: model.PriorityWarning}); err != nil {
			return err
		}
		_, err := s.MarkReadingProcessed(ctx, 5)
		return err
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrate_RunsEveryStatement(t *testing.T) {
	s, mock := newMockStore(t)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
