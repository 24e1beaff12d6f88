package agent

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
	"github.com/mukhtiarDev/personal-health-monitor/internal/storage"
)

var errInjected = errors.New("store unavailable")

// memStore is an in-memory MetricStore/ApprovalStore/AuditLog/Transactor.
// failOn maps an operation name to the 1-based call that should fail.
type memStore struct {
	mu        sync.Mutex
	readings  []model.MetricReading
	approvals []model.ApprovalRequest
	audit     []model.AuditEntry
	nextID    int64

	calls  map[string]int
	failOn map[string]int

	// beforeTransition runs before each TransitionApproval, outside the lock.
	beforeTransition func(id int64, from, to model.ApprovalStatus)
}

func newMemStore() *memStore {
	return &memStore{calls: map[string]int{}, failOn: map[string]int{}}
}

func (m *memStore) fail(op string) error {
	m.calls[op]++
	if n, ok := m.failOn[op]; ok && n == m.calls[op] {
		return errInjected
	}
	return nil
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addReading(ts time.Time, hr float64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.readings = append(m.readings, model.MetricReading{ID: id, Timestamp: ts, HeartRate: hr, Steps: 20, Status: model.ReadingNew})
	return id
}

func (m *memStore) addApproval(ts time.Time, desc string, status model.ApprovalStatus) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.approvals = append(m.approvals, model.ApprovalRequest{
		ID: id, Timestamp: ts, AgentName: AnalyzerName, ActionDescription: desc,
		Priority: model.PriorityCritical, MetricID: 1, Status: status,
	})
	return id
}

func (m *memStore) reading(id int64) model.MetricReading {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.readings {
		if r.ID == id {
			return r
		}
	}
	return model.MetricReading{}
}

func (m *memStore) approval(id int64) model.ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.approvals {
		if a.ID == id {
			return a
		}
	}
	return model.ApprovalRequest{}
}

func (m *memStore) auditEntries() []model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditEntry(nil), m.audit...)
}

func (m *memStore) approvalList() []model.ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ApprovalRequest(nil), m.approvals...)
}

func (m *memStore) ListReadings(_ context.Context, status model.ReadingStatus) ([]model.MetricReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListReadings"); err != nil {
		return nil, err
	}
	var out []model.MetricReading
	for _, r := range m.readings {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memStore) MarkReadingProcessed(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("MarkReadingProcessed"); err != nil {
		return false, err
	}
	for i := range m.readings {
		if m.readings[i].ID == id && m.readings[i].Status == model.ReadingNew {
			m.readings[i].Status = model.ReadingProcessed
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateApproval(_ context.Context, a *model.ApprovalRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateApproval"); err != nil {
		return 0, err
	}
	cp := *a
	cp.ID = m.id()
	m.approvals = append(m.approvals, cp)
	return cp.ID, nil
}

func (m *memStore) ListApprovals(_ context.Context, status model.ApprovalStatus) ([]model.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListApprovals"); err != nil {
		return nil, err
	}
	var out []model.ApprovalRequest
	for _, a := range m.approvals {
		if a.Status == status {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memStore) TransitionApproval(_ context.Context, id int64, from, to model.ApprovalStatus) (bool, error) {
	if m.beforeTransition != nil {
		m.beforeTransition(id, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("TransitionApproval"); err != nil {
		return false, err
	}
	if !model.CanTransition(from, to) {
		return false, errors.New("illegal transition")
	}
	for i := range m.approvals {
		if m.approvals[i].ID == id && m.approvals[i].Status == from {
			m.approvals[i].Status = to
			if to == model.ApprovalEscalating {
				t := now()
				m.approvals[i].ClaimedAt = &t
			} else {
				m.approvals[i].ClaimedAt = nil
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ReclaimStaleClaims(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ReclaimStaleClaims"); err != nil {
		return 0, err
	}
	cutoff := now().Add(-olderThan)
	var n int64
	for i := range m.approvals {
		a := &m.approvals[i]
		if a.Status == model.ApprovalEscalating && a.ClaimedAt != nil && a.ClaimedAt.Before(cutoff) {
			a.Status = model.ApprovalApproved
			a.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *memStore) AppendAudit(_ context.Context, e *model.AuditEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AppendAudit"); err != nil {
		return 0, err
	}
	cp := *e
	cp.ID = m.id()
	m.audit = append(m.audit, cp)
	return cp.ID, nil
}

// WithinTx snapshots the tables and restores them if fn fails.
func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	readings := append([]model.MetricReading(nil), m.readings...)
	approvals := append([]model.ApprovalRequest(nil), m.approvals...)
	audit := append([]model.AuditEntry(nil), m.audit...)
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.readings, m.approvals, m.audit = readings, approvals, audit
		m.mu.Unlock()
		return err
	}
	return nil
}

// recordingWriter captures mirrored audit events.
type recordingWriter struct {
	mu     sync.Mutex
	events []*storage.AuditEvent
}

func (w *recordingWriter) Write(ev *storage.AuditEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
}

func (w *recordingWriter) Close() {}

// recordingNotifier counts escalation side effects per approval.
type recordingNotifier struct {
	mu    sync.Mutex
	calls map[int64]int
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, req model.ApprovalRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = map[int64]int{}
	}
	n.calls[req.ID]++
	return n.err
}

func (n *recordingNotifier) count(id int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[id]
}
