package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/engine"
	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
	"github.com/mukhtiarDev/personal-health-monitor/internal/storage"
)

// AnalyzerName is the agent_name written by the Analyzer.
const AnalyzerName = "TrendAnalyzerAgent"

// errAlreadyProcessed rolls back a reading another coordinator marked first.
var errAlreadyProcessed = errors.New("reading already processed")

// AnalyzerConfig configures the Analyzer.
type AnalyzerConfig struct {
	Metrics    MetricStore
	Approvals  ApprovalStore
	Audit      AuditLog
	Tx         Transactor // nil = no transactions
	Thresholds engine.Thresholds
	Mirror     storage.EventWriter // nil = no mirroring
	Logger     *zap.Logger
}

// Analyzer classifies new readings, logs warnings, and raises approval
// requests for critical ones.
type Analyzer struct {
	metrics    MetricStore
	approvals  ApprovalStore
	audit      AuditLog
	tx         Transactor
	thresholds engine.Thresholds
	mirror     storage.EventWriter
	logger     *zap.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	tx := cfg.Tx
	if tx == nil {
		tx = noTx{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		metrics:    cfg.Metrics,
		approvals:  cfg.Approvals,
		audit:      cfg.Audit,
		tx:         tx,
		thresholds: cfg.Thresholds,
		mirror:     cfg.Mirror,
		logger:     logger.With(zap.String("agent", AnalyzerName)),
	}
}

// Name returns the agent name.
func (a *Analyzer) Name() string { return AnalyzerName }

// Run processes every reading with status new, oldest first.
//
// For each reading the approval request (critical), the audit entry
// (critical or warning) and the new -> processed mark commit in one
// transaction, with the mark last. The first error aborts the rest of the
// batch and is returned in Result.Err.
func (a *Analyzer) Run(ctx context.Context) Result {
	res := Result{Agent: AnalyzerName}

	readings, err := a.metrics.ListReadings(ctx, model.ReadingNew)
	if err != nil {
		res.Err = fmt.Errorf("list new readings: %w", err)
		return res
	}
	if len(readings) == 0 {
		return res
	}
	res.Fetched = len(readings)

	a.logger.Info("found new metrics to analyze",
		zap.String("cycle_id", CycleIDFrom(ctx)),
		zap.Int("count", len(readings)),
	)

	for i := range readings {
		r := &readings[i]
		sev := engine.Classify(r.HeartRate, a.thresholds)

		events, err := a.process(ctx, r, sev)
		if errors.Is(err, errAlreadyProcessed) {
			a.logger.Warn("reading processed by another worker, skipping",
				zap.Int64("reading_id", r.ID),
			)
			res.Skipped++
			continue
		}
		if err != nil {
			res.Err = fmt.Errorf("reading %d: %w", r.ID, err)
			return res
		}

		res.Processed++
		switch sev {
		case engine.SeverityCritical:
			res.Critical++
		case engine.SeverityWarning:
			res.Warning++
		default:
			res.Normal++
		}
		a.publish(events)
	}
	return res
}

// process commits the side effects of one reading and returns the mirror
// events for the audit entries it wrote.
func (a *Analyzer) process(ctx context.Context, r *model.MetricReading, sev engine.Severity) ([]*storage.AuditEvent, error) {
	var events []*storage.AuditEvent

	err := a.tx.WithinTx(ctx, func(ctx context.Context) error {
		events = events[:0]

		switch sev {
		case engine.SeverityCritical:
			a.logger.Info("critical anomaly detected, requesting approval",
				zap.Int64("reading_id", r.ID),
				zap.Float64("heart_rate", r.HeartRate),
			)
			desc := CriticalDescription(r.HeartRate)
			approvalID, err := a.approvals.CreateApproval(ctx, &model.ApprovalRequest{
				AgentName:         AnalyzerName,
				ActionDescription: desc,
				Priority:          model.PriorityCritical,
				MetricID:          r.ID,
				Status:            model.ApprovalPending,
			})
			if err != nil {
				return err
			}
			ev, err := a.appendAudit(ctx, desc, model.PriorityCritical)
			if err != nil {
				return err
			}
			ev.MetricID = r.ID
			ev.ApprovalID = approvalID
			events = append(events, ev)

		case engine.SeverityWarning:
			a.logger.Info("warning anomaly detected",
				zap.Int64("reading_id", r.ID),
				zap.Float64("heart_rate", r.HeartRate),
			)
			ev, err := a.appendAudit(ctx, WarningMessage(r.HeartRate), model.PriorityWarning)
			if err != nil {
				return err
			}
			ev.MetricID = r.ID
			events = append(events, ev)
		}

		marked, err := a.metrics.MarkReadingProcessed(ctx, r.ID)
		if err != nil {
			return err
		}
		if !marked {
			return errAlreadyProcessed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (a *Analyzer) appendAudit(ctx context.Context, msg string, prio model.Priority) (*storage.AuditEvent, error) {
	entry := &model.AuditEntry{
		Timestamp: now(),
		AgentName: AnalyzerName,
		Message:   msg,
		Priority:  prio,
	}
	id, err := a.audit.AppendAudit(ctx, entry)
	if err != nil {
		return nil, err
	}
	entry.ID = id
	return storage.NewAuditEvent(CycleIDFrom(ctx), entry), nil
}

func (a *Analyzer) publish(events []*storage.AuditEvent) {
	if a.mirror == nil {
		return
	}
	for _, ev := range events {
		a.mirror.Write(ev)
	}
}

// CriticalDescription is the action description of a critical approval request.
func CriticalDescription(heartRate float64) string {
	return fmt.Sprintf("CRITICAL: Heart rate at %.1f bpm detected. Recommend escalating to emergency contact/doctor.", heartRate)
}

// WarningMessage is the audit message for a warning-class reading.
func WarningMessage(heartRate float64) string {
	return fmt.Sprintf("High heart rate detected: %.1f bpm. Recommend rest and monitoring.", heartRate)
}
