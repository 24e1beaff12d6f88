// Package agent implements the two pipeline agents driven by the coordinator:
// the Analyzer classifies new readings and raises approval requests, the
// Escalator acts on requests an operator approved.
//
// Agents never share memory with the dashboard or the generator; all
// coordination goes through the store, so every status change is a
// conditional write that loses cleanly to a concurrent writer.
package agent

import (
	"context"
	"time"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// MetricStore is the slice of the reading table the Analyzer needs.
type MetricStore interface {
	ListReadings(ctx context.Context, status model.ReadingStatus) ([]model.MetricReading, error)
	// MarkReadingProcessed moves new -> processed; false if it was not new.
	MarkReadingProcessed(ctx context.Context, id int64) (bool, error)
}

// ApprovalStore is the slice of the approvals table the agents need.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, a *model.ApprovalRequest) (int64, error)
	ListApprovals(ctx context.Context, status model.ApprovalStatus) ([]model.ApprovalRequest, error)
	// TransitionApproval applies from -> to only if the row is still in from.
	TransitionApproval(ctx context.Context, id int64, from, to model.ApprovalStatus) (bool, error)
	ReclaimStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)
}

// AuditLog is the append-only agent log.
type AuditLog interface {
	AppendAudit(ctx context.Context, e *model.AuditEntry) (int64, error)
}

// Transactor runs fn atomically. Store calls made with the ctx handed to fn
// commit or roll back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// noTx runs fn directly, for stores without transactions.
type noTx struct{}

func (noTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Result is the outcome of one agent invocation. Err is the error that
// aborted the batch; items handled before it stay committed.
type Result struct {
	Agent     string
	Fetched   int // eligible items read at the start of the run
	Processed int // items whose writes committed
	Skipped   int // items another process handled first
	Critical  int
	Warning   int
	Normal    int
	Err       error
}

// Failed reports whether the batch was aborted.
func (r Result) Failed() bool { return r.Err != nil }

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

type cycleKey struct{}

// WithCycleID tags ctx with the coordinator cycle id used in logs and the
// audit mirror.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

// CycleIDFrom returns the cycle id stored by WithCycleID, or "".
func CycleIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}
