package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// Notifier performs the escalation side effect for one approved request.
type Notifier interface {
	Notify(ctx context.Context, req model.ApprovalRequest) error
}

// LogNotifier simulates contacting the doctor by logging the escalation.
// No message leaves the process.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, req model.ApprovalRequest) error {
	n.logger.Info("ESCALATING: simulating email to doctor",
		zap.Int64("approval_id", req.ID),
		zap.Int64("metric_id", req.MetricID),
		zap.String("action_description", req.ActionDescription),
	)
	return nil
}
