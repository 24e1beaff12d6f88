// Package model holds the persisted entities shared by the agents, the store
// and the dashboard API.
package model

import "time"

// ReadingStatus is the processing flag of a MetricReading.
type ReadingStatus string

const (
	ReadingNew       ReadingStatus = "new"
	ReadingProcessed ReadingStatus = "processed"
)

// MetricReading is a single heart-rate/steps sample written by the generator.
type MetricReading struct {
	ID        int64
	Timestamp time.Time
	HeartRate float64
	Steps     int
	Status    ReadingStatus
}

// Priority is shared by approval requests and audit entries.
type Priority string

const (
	PriorityInfo     Priority = "info"
	PriorityWarning  Priority = "warning"
	PriorityCritical Priority = "critical"
)

// ApprovalRequest is a human-approval gate raised for a critical reading.
type ApprovalRequest struct {
	ID                int64
	Timestamp         time.Time
	AgentName         string
	ActionDescription string
	Priority          Priority
	MetricID          int64 // weak reference to MetricReading.ID
	Status            ApprovalStatus
	ClaimedAt         *time.Time // set while Status == escalating
}

// AuditEntry is one append-only record of an agent action.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	AgentName string
	Message   string
	Priority  Priority
}

// Operator is a dashboard user allowed to approve or reject requests.
// TokenHash is a bcrypt hash; the raw token is shown once at creation.
type Operator struct {
	ID          int64
	Name        string
	TokenPrefix string
	TokenHash   string
	CreatedAt   time.Time
}
