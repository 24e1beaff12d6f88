package cli

import (
	"context"
	"sort"
	"sync"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
	"github.com/mukhtiarDev/personal-health-monitor/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	approvals map[int64]*model.ApprovalRequest
	audit     []model.AuditEntry
	operators []model.Operator
	err       error

	// prefixCollisions makes the next N CreateOperator calls fail with
	// store.ErrPrefixTaken.
	prefixCollisions int
	createCalls      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{approvals: map[int64]*model.ApprovalRequest{}}
}

func (s *fakeStore) add(a model.ApprovalRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[a.ID] = &a
}

func (s *fakeStore) status(id int64) model.ApprovalStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approvals[id].Status
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
	out := s.audit
	if len(out) > limit {
		out = out[:limit]
	}
	return append([]model.AuditEntry(nil), out...), nil
}

func (s *fakeStore) CreateOperator(_ context.Context, op *model.Operator) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.err != nil {
		return 0, s.err
	}
	if s.prefixCollisions > 0 {
		s.prefixCollisions--
		return 0, store.ErrPrefixTaken
	}
	for _, existing := range s.operators {
		if existing.Name == op.Name {
			return 0, store.ErrOperatorExists
		}
	}
	cp := *op
	cp.ID = int64(len(s.operators) + 1)
	s.operators = append(s.operators, cp)
	return cp.ID, nil
}

func (s *fakeStore) ListOperators(context.Context) ([]model.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]model.Operator(nil), s.operators...), nil
}

func (s *fakeStore) DeleteOperator(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	for i, op := range s.operators {
		if op.Name == name {
			s.operators = append(s.operators[:i], s.operators[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
