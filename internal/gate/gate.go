// Package gate applies operator decisions to pending approval requests.
//
// A decision is a conditional pending -> approved|rejected write, so two
// operators (or a double click) racing on the same request resolve to
// exactly one winner; the loser gets ErrNotPending.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

var (
	ErrNotFound   = errors.New("approval request not found")
	ErrNotPending = errors.New("approval request is no longer pending")
)

// Decision is an operator's verdict on a pending request.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Target returns the status a decision moves a request to.
func (d Decision) Target() (model.ApprovalStatus, error) {
	switch d {
	case Approve:
		return model.ApprovalApproved, nil
	case Reject:
		return model.ApprovalRejected, nil
	default:
		return "", fmt.Errorf("unknown decision %q", d)
	}
}

// Store is the slice of the approvals table a decision needs.
type Store interface {
	GetApproval(ctx context.Context, id int64) (*model.ApprovalRequest, error)
	TransitionApproval(ctx context.Context, id int64, from, to model.ApprovalStatus) (bool, error)
}

// Decide applies d to request id and returns the updated request.
func Decide(ctx context.Context, s Store, id int64, d Decision) (*model.ApprovalRequest, error) {
	target, err := d.Target()
	if err != nil {
		return nil, err
	}

	won, err := s.TransitionApproval(ctx, id, model.ApprovalPending, target)
	if err != nil {
		return nil, fmt.Errorf("Decide: %w", err)
	}

	req, err := s.GetApproval(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Decide: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	if !won {
		return req, fmt.Errorf("%w: status is %s", ErrNotPending, req.Status)
	}
	return req, nil
}
