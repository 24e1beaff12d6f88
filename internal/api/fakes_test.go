package api

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mukhtiarDev/personal-health-monitor/internal/auth"
	"github.com/mukhtiarDev/personal-health-monitor/internal/chread"
	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

var errDB = errors.New("database unavailable")

type fakeStore struct {
	mu        sync.Mutex
	readings  []model.MetricReading
	approvals map[int64]*model.ApprovalRequest
	audit     []model.AuditEntry
	err       error
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{approvals: map[int64]*model.ApprovalRequest{}}
}

func (s *fakeStore) addApproval(a model.ApprovalRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[a.ID] = &a
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) AppendReading(_ context.Context, r *model.MetricReading) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	cp := *r
	cp.ID = int64(len(s.readings) + 1)
	s.readings = append(s.readings, cp)
	return cp.ID, nil
}

func (s *fakeStore) RecentReadings(_ context.Context, limit int) ([]model.MetricReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := s.readings
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]model.MetricReading(nil), out...), nil
}

func (s *fakeStore) ListApprovals(_ context.Context, status model.ApprovalStatus) ([]model.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []model.ApprovalRequest
	for _, a := range s.approvals {
		if a.Status == status {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) GetApproval(_ context.Context, id int64) (*model.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.approvals[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) TransitionApproval(_ context.Context, id int64, from, to model.ApprovalStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	a, ok := s.approvals[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

func (s *fakeStore) ListAudit(_ context.Context, limit int) ([]model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := append([]model.AuditEntry(nil), s.audit...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeReader struct {
	events     []chread.EventRow
	summary    []chread.SummaryRow
	lastParams chread.ListEventsParams
	err        error
}

func (r *fakeReader) ListEvents(_ context.Context, p chread.ListEventsParams) ([]chread.EventRow, int, error) {
	r.lastParams = p
	if r.err != nil {
		return nil, 0, r.err
	}
	return r.events, len(r.events), nil
}

func (r *fakeReader) Summary(_ context.Context, p chread.ListEventsParams) ([]chread.SummaryRow, error) {
	r.lastParams = p
	if r.err != nil {
		return nil, r.err
	}
	return r.summary, nil
}

// tokenAuth accepts a single token.
type tokenAuth struct {
	token string
	err   error
}

func (a *tokenAuth) Authenticate(_ context.Context, header string) (*auth.Identity, error) {
	if a.err != nil {
		return nil, a.err
	}
	tok, err := auth.BearerToken(header)
	if err != nil {
		return nil, err
	}
	if tok != a.token {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Identity{OperatorID: 1, Name: "alice"}, nil
}
