package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
	"github.com/mukhtiarDev/personal-health-monitor/internal/storage"
)

// EscalatorName is the agent_name written by the Escalator.
const EscalatorName = "EscalationAgent"

// DefaultClaimLease is how long a request may sit in 'escalating' before a
// later run returns it to 'approved'.
const DefaultClaimLease = time.Minute

// errClaimLost aborts the final write when the claim was reclaimed meanwhile.
var errClaimLost = errors.New("escalation claim lost")

// EscalatorConfig configures the Escalator.
type EscalatorConfig struct {
	Approvals  ApprovalStore
	Audit      AuditLog
	Tx         Transactor // nil = no transactions
	Notifier   Notifier   // nil = LogNotifier
	ClaimLease time.Duration
	Mirror     storage.EventWriter
	Logger     *zap.Logger
}

// Escalator performs the escalation side effect for approved requests.
type Escalator struct {
	approvals ApprovalStore
	audit     AuditLog
	tx        Transactor
	notifier  Notifier
	lease     time.Duration
	mirror    storage.EventWriter
	logger    *zap.Logger
}

// NewEscalator creates an Escalator.
func NewEscalator(cfg EscalatorConfig) *Escalator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tx := cfg.Tx
	if tx == nil {
		tx = noTx{}
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	lease := cfg.ClaimLease
	if lease == 0 {
		lease = DefaultClaimLease
	}
	return &Escalator{
		approvals: cfg.Approvals,
		audit:     cfg.Audit,
		tx:        tx,
		notifier:  notifier,
		lease:     lease,
		mirror:    cfg.Mirror,
		logger:    logger.With(zap.String("agent", EscalatorName)),
	}
}

// Name returns the agent name.
func (e *Escalator) Name() string { return EscalatorName }

// Run escalates every approved request, oldest first.
//
// Each request is claimed with a conditional approved -> escalating write
// before the notification fires, so two workers racing on the same row
// cannot both notify. The audit entry and escalating -> escalated commit
// together afterwards. A request whose notification or final write fails
// stays 'escalating' until its claim goes stale and a later run reclaims it.
func (e *Escalator) Run(ctx context.Context) Result {
	res := Result{Agent: EscalatorName}

	reclaimed, err := e.approvals.ReclaimStaleClaims(ctx, e.lease)
	if err != nil {
		res.Err = fmt.Errorf("reclaim stale claims: %w", err)
		return res
	}
	if reclaimed > 0 {
		e.logger.Warn("reclaimed stale escalation claims",
			zap.Int64("count", reclaimed),
			zap.Duration("lease", e.lease),
		)
	}

	approved, err := e.approvals.ListApprovals(ctx, model.ApprovalApproved)
	if err != nil {
		res.Err = fmt.Errorf("list approved requests: %w", err)
		return res
	}
	if len(approved) == 0 {
		return res
	}
	res.Fetched = len(approved)

	e.logger.Info("found approved requests to escalate",
		zap.String("cycle_id", CycleIDFrom(ctx)),
		zap.Int("count", len(approved)),
	)

	for i := range approved {
		req := &approved[i]

		won, err := e.approvals.TransitionApproval(ctx, req.ID, model.ApprovalApproved, model.ApprovalEscalating)
		if err != nil {
			res.Err = fmt.Errorf("approval %d: claim: %w", req.ID, err)
			return res
		}
		if !won {
			e.logger.Info("approval claimed by another worker, skipping",
				zap.Int64("approval_id", req.ID),
			)
			res.Skipped++
			continue
		}

		if err := e.notifier.Notify(ctx, *req); err != nil {
			res.Err = fmt.Errorf("approval %d: notify: %w", req.ID, err)
			return res
		}

		ev, err := e.finish(ctx, req)
		if errors.Is(err, errClaimLost) {
			e.logger.Warn("escalation claim reclaimed before completion",
				zap.Int64("approval_id", req.ID),
			)
			res.Skipped++
			continue
		}
		if err != nil {
			res.Err = fmt.Errorf("approval %d: %w", req.ID, err)
			return res
		}

		res.Processed++
		if e.mirror != nil {
			e.mirror.Write(ev)
		}
	}
	return res
}

// finish appends the escalation audit entry and marks the request escalated.
func (e *Escalator) finish(ctx context.Context, req *model.ApprovalRequest) (*storage.AuditEvent, error) {
	var ev *storage.AuditEvent

	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		entry := &model.AuditEntry{
			Timestamp: now(),
			AgentName: EscalatorName,
			Message:   EscalationMessage(req.ActionDescription),
			Priority:  model.PriorityCritical,
		}
		id, err := e.audit.AppendAudit(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id

		done, err := e.approvals.TransitionApproval(ctx, req.ID, model.ApprovalEscalating, model.ApprovalEscalated)
		if err != nil {
			return err
		}
		if !done {
			return errClaimLost
		}

		ev = storage.NewAuditEvent(CycleIDFrom(ctx), entry)
		ev.MetricID = req.MetricID
		ev.ApprovalID = req.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// EscalationMessage is the audit message written when a request is escalated.
func EscalationMessage(actionDescription string) string {
	return "ACTION: Escalation approved by user. (Simulated email to doctor for: " + actionDescription + ")"
}
