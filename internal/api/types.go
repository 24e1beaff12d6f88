package api

import (
	"time"

	"github.com/mukhtiarDev/personal-health-monitor/internal/chread"
	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// ErrorResp is the body of every non-2xx response.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// --- Readings ---

// CreateReadingReq is the JSON body for POST /api/readings.
// Timestamp defaults to the time of receipt.
type CreateReadingReq struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	HeartRate float64    `json:"heart_rate"`
	Steps     int        `json:"steps"`
}

// CreatedResp is returned by creation endpoints.
type CreatedResp struct {
	ID int64 `json:"id"`
}

// ReadingResp is one row of the metrics table.
type ReadingResp struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	HeartRate float64   `json:"heart_rate"`
	Steps     int       `json:"steps"`
	Status    string    `json:"status"`
}

func readingToResp(r model.MetricReading) ReadingResp {
	return ReadingResp{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		HeartRate: r.HeartRate,
		Steps:     r.Steps,
		Status:    string(r.Status),
	}
}

// --- Approvals ---

// ApprovalResp is one approval request.
type ApprovalResp struct {
	ID                int64      `json:"id"`
	Timestamp         time.Time  `json:"timestamp"`
	AgentName         string     `json:"agent_name"`
	ActionDescription string     `json:"action_description"`
	Priority          string     `json:"priority"`
	MetricID          int64      `json:"metric_id"`
	Status            string     `json:"status"`
	ClaimedAt         *time.Time `json:"claimed_at,omitempty"`
}

func approvalToResp(a *model.ApprovalRequest) ApprovalResp {
	return ApprovalResp{
		ID:                a.ID,
		Timestamp:         a.Timestamp,
		AgentName:         a.AgentName,
		ActionDescription: a.ActionDescription,
		Priority:          string(a.Priority),
		MetricID:          a.MetricID,
		Status:            string(a.Status),
		ClaimedAt:         a.ClaimedAt,
	}
}

// DecisionResp is returned after an operator decision is applied.
type DecisionResp struct {
	Approval  ApprovalResp `json:"approval"`
	DecidedBy string       `json:"decided_by"`
}

// --- Agent log ---

// AuditEntryResp is one agent_log row.
type AuditEntryResp struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	AgentName string    `json:"agent_name"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
}

func auditToResp(e model.AuditEntry) AuditEntryResp {
	return AuditEntryResp{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		AgentName: e.AgentName,
		Message:   e.Message,
		Priority:  string(e.Priority),
	}
}

// --- ClickHouse mirror ---

// AuditEventResp is one mirrored audit event.
type AuditEventResp struct {
	EventID    string    `json:"event_id"`
	CycleID    string    `json:"cycle_id"`
	AuditID    int64     `json:"audit_id"`
	Timestamp  time.Time `json:"timestamp"`
	AgentName  string    `json:"agent_name"`
	Message    string    `json:"message"`
	Priority   string    `json:"priority"`
	MetricID   *int64    `json:"metric_id"`
	ApprovalID *int64    `json:"approval_id"`
}

// EventListResp is a page of mirrored audit events.
type EventListResp struct {
	Events   []AuditEventResp `json:"events"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

func eventRowToResp(e chread.EventRow) AuditEventResp {
	return AuditEventResp{
		EventID:    e.EventID,
		CycleID:    e.CycleID,
		AuditID:    e.AuditID,
		Timestamp:  e.Timestamp,
		AgentName:  e.AgentName,
		Message:    e.Message,
		Priority:   e.Priority,
		MetricID:   nilIfZero(e.MetricID),
		ApprovalID: nilIfZero(e.ApprovalID),
	}
}

// SummaryRowResp is the event count for one agent/priority pair.
type SummaryRowResp struct {
	AgentName string `json:"agent_name"`
	Priority  string `json:"priority"`
	Count     uint64 `json:"count"`
}

// SummaryResp is the body of GET /api/audit/summary.
type SummaryResp struct {
	Rows  []SummaryRowResp `json:"rows"`
	Total uint64           `json:"total"`
}

func nilIfZero(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
