package api

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/gate"
	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

func (d *Dependencies) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	status := model.ApprovalPending
	if v := r.URL.Query().Get("status"); v != "" {
		status = model.ApprovalStatus(v)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "unknown status " + strconv.Quote(v)})
			return
		}
	}

	approvals, err := d.Store.ListApprovals(r.Context(), status)
	if err != nil {
		d.Logger.Error("failed to list approvals", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list approvals"})
		return
	}

	resp := make([]ApprovalResp, 0, len(approvals))
	for i := range approvals {
		resp = append(resp, approvalToResp(&approvals[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	a, err := d.Store.GetApproval(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get approval", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get approval"})
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Approval request not found."})
		return
	}
	writeJSON(w, http.StatusOK, approvalToResp(a))
}

func (d *Dependencies) handleApprove(w http.ResponseWriter, r *http.Request) {
	d.decide(w, r, gate.Approve)
}

func (d *Dependencies) handleReject(w http.ResponseWriter, r *http.Request) {
	d.decide(w, r, gate.Reject)
}

func (d *Dependencies) decide(w http.ResponseWriter, r *http.Request, decision gate.Decision) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	operator := identityFromContext(r.Context())

	a, err := gate.Decide(r.Context(), d.Store, id, decision)
	switch {
	case errors.Is(err, gate.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Approval request not found."})
		return
	case errors.Is(err, gate.ErrNotPending):
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: "Approval request is " + string(a.Status) + ", not pending."})
		return
	case err != nil:
		d.Logger.Error("failed to apply decision", zap.Int64("approval_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to apply decision"})
		return
	}

	d.Logger.Info("operator decision applied",
		zap.Int64("approval_id", id),
		zap.String("decision", string(decision)),
		zap.String("operator", operator.Name),
	)
	if d.Metrics != nil {
		d.Metrics.ApprovalDecided(string(a.Status))
	}
	writeJSON(w, http.StatusOK, DecisionResp{Approval: approvalToResp(a), DecidedBy: operator.Name})
}

// pathID parses the {id} path segment, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "id must be a positive integer"})
		return 0, false
	}
	return id, true
}
