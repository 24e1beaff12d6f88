package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// EventWriter mirrors committed audit entries to an analytics sink.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *AuditEvent)
	Close()
}

// AuditEvent is a committed agent_log row plus the cycle it belongs to.
type AuditEvent struct {
	EventID    string
	CycleID    string
	AuditID    int64
	Timestamp  time.Time
	AgentName  string
	Message    string
	Priority   string
	MetricID   int64 // 0 when the entry is not tied to a reading
	ApprovalID int64 // 0 when the entry is not tied to an approval
}

// MessagePreviewLength is the max chars stored in the mirrored message.
const MessagePreviewLength = 500

// NewAuditEvent builds an AuditEvent from a committed entry.
func NewAuditEvent(cycleID string, e *model.AuditEntry) *AuditEvent {
	return &AuditEvent{
		EventID:   uuid.NewString(),
		CycleID:   cycleID,
		AuditID:   e.ID,
		Timestamp: e.Timestamp,
		AgentName: e.AgentName,
		Message:   TruncateMessage(e.Message, MessagePreviewLength),
		Priority:  string(e.Priority),
	}
}

// TruncateMessage returns the first N characters (runes) of a message.
// It never splits a multi-byte UTF-8 character.
func TruncateMessage(msg string, maxLen int) string {
	runes := []rune(msg)
	if len(runes) <= maxLen {
		return msg
	}
	return string(runes[:maxLen])
}
