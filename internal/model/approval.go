package model

// ApprovalStatus is the lifecycle state of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending    ApprovalStatus = "pending"
	ApprovalApproved   ApprovalStatus = "approved"
	ApprovalRejected   ApprovalStatus = "rejected"
	ApprovalEscalating ApprovalStatus = "escalating"
	ApprovalEscalated  ApprovalStatus = "escalated"
)

// transitions lists every legal edge of the approval state machine.
//
//	pending    -> approved | rejected     (operator)
//	approved   -> escalating              (escalation claim)
//	escalating -> escalated               (escalation done)
//	escalating -> approved                (stale claim reclaimed)
var transitions = map[ApprovalStatus][]ApprovalStatus{
	ApprovalPending:    {ApprovalApproved, ApprovalRejected},
	ApprovalApproved:   {ApprovalEscalating},
	ApprovalEscalating: {ApprovalEscalated, ApprovalApproved},
}

// CanTransition reports whether from -> to is a legal approval transition.
func CanTransition(from, to ApprovalStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalRejected || s == ApprovalEscalated
}

// Valid reports whether s is a known status.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalEscalating, ApprovalEscalated:
		return true
	}
	return false
}
