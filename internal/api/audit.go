package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/chread"
)

func (d *Dependencies) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := clamp(queryInt(r, "limit", 20), 1, 500)

	entries, err := d.Store.ListAudit(r.Context(), limit)
	if err != nil {
		d.Logger.Error("failed to list agent log", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list agent log"})
		return
	}

	resp := make([]AuditEntryResp, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, auditToResp(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	params := eventParams(r)
	params.Page = queryInt(r, "page", 1)
	if params.Page < 1 {
		params.Page = 1
	}
	params.PageSize = clamp(queryInt(r, "page_size", 50), 1, 200)

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list audit events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}

	resp := EventListResp{
		Events:   make([]AuditEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	params := eventParams(r)
	if params.StartTime == nil {
		days := clamp(queryInt(r, "days", 7), 1, 90)
		start := time.Now().UTC().AddDate(0, 0, -days)
		params.StartTime = &start
	}

	rows, err := d.Reader.Summary(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to summarise audit events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get summary"})
		return
	}

	resp := SummaryResp{Rows: make([]SummaryRowResp, 0, len(rows))}
	for _, row := range rows {
		resp.Rows = append(resp.Rows, SummaryRowResp{AgentName: row.AgentName, Priority: row.Priority, Count: row.Count})
		resp.Total += row.Count
	}
	writeJSON(w, http.StatusOK, resp)
}

// eventParams reads the shared ClickHouse filters from the query string.
// Unparseable times are ignored.
func eventParams(r *http.Request) chread.ListEventsParams {
	q := r.URL.Query()
	var params chread.ListEventsParams
	if v := q.Get("agent_name"); v != "" {
		params.AgentName = &v
	}
	if v := q.Get("priority"); v != "" {
		params.Priority = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}
	return params
}
