package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/auth"
	"github.com/mukhtiarDev/personal-health-monitor/internal/chread"
	"github.com/mukhtiarDev/personal-health-monitor/internal/metrics"
	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// Store is the Postgres surface the dashboard reads and writes.
type Store interface {
	Ping(ctx context.Context) error
	AppendReading(ctx context.Context, r *model.MetricReading) (int64, error)
	RecentReadings(ctx context.Context, limit int) ([]model.MetricReading, error)
	ListApprovals(ctx context.Context, status model.ApprovalStatus) ([]model.ApprovalRequest, error)
	GetApproval(ctx context.Context, id int64) (*model.ApprovalRequest, error)
	TransitionApproval(ctx context.Context, id int64, from, to model.ApprovalStatus) (bool, error)
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

// AuditReader queries the ClickHouse audit mirror.
type AuditReader interface {
	ListEvents(ctx context.Context, params chread.ListEventsParams) ([]chread.EventRow, int, error)
	Summary(ctx context.Context, params chread.ListEventsParams) ([]chread.SummaryRow, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store    Store
	Reader   AuditReader        // nil if ClickHouse unavailable
	Auth     auth.Authenticator // nil rejects every decision with 503
	Metrics  *metrics.Metrics   // optional
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	// Readings (operator token required for ingest and decisions)
	mux.HandleFunc("GET /api/readings/recent", deps.handleRecentReadings)
	mux.HandleFunc("POST /api/readings", deps.authMiddleware(deps.handleCreateReading))

	// Approval gate
	mux.HandleFunc("GET /api/approvals", deps.handleListApprovals)
	mux.HandleFunc("GET /api/approvals/{id}", deps.handleGetApproval)
	mux.HandleFunc("POST /api/approvals/{id}/approve", deps.authMiddleware(deps.handleApprove))
	mux.HandleFunc("POST /api/approvals/{id}/reject", deps.authMiddleware(deps.handleReject))

	// Agent log and ClickHouse analytics
	mux.HandleFunc("GET /api/audit", deps.handleListAudit)
	mux.HandleFunc("GET /api/audit/events", deps.handleListEvents)
	mux.HandleFunc("GET /api/audit/summary", deps.handleAuditSummary)

	mux.HandleFunc("GET /healthz", deps.handleHealth)
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return corsMiddleware(requestLogging(mux, deps.Logger))
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.Ping(r.Context()); err != nil {
		d.Logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
