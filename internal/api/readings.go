package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// maxReadingBody bounds POST /api/readings bodies.
const maxReadingBody = 4 << 10

const readingSchemaJSON = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["heart_rate", "steps"],
	"properties": {
		"timestamp":  {"type": "string", "format": "date-time"},
		"heart_rate": {"type": "number", "exclusiveMinimum": 0, "maximum": 300},
		"steps":      {"type": "integer", "minimum": 0, "maximum": 100000}
	}
}`

var readingSchema = mustCompileSchema("reading.json", readingSchemaJSON)

func mustCompileSchema(name, raw string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(raw)))
	if err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	return c.MustCompile(name)
}

// validateReading checks body against the reading schema and decodes it.
func validateReading(body []byte) (*CreateReadingReq, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("body is not valid JSON: %w", err)
	}
	if err := readingSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	var req CreateReadingReq
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("body is not a reading: %w", err)
	}
	return &req, nil
}

func (d *Dependencies) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxReadingBody+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read body"})
		return
	}
	if len(body) > maxReadingBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResp{Detail: "Body too large"})
		return
	}

	req, err := validateReading(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	reading := &model.MetricReading{
		Timestamp: time.Now().UTC(),
		HeartRate: req.HeartRate,
		Steps:     req.Steps,
		Status:    model.ReadingNew,
	}
	if req.Timestamp != nil {
		reading.Timestamp = req.Timestamp.UTC()
	}

	id, err := d.Store.AppendReading(r.Context(), reading)
	if err != nil {
		d.Logger.Error("failed to append reading", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to store reading"})
		return
	}
	if d.Metrics != nil {
		d.Metrics.ReadingIngested()
	}
	writeJSON(w, http.StatusCreated, CreatedResp{ID: id})
}

func (d *Dependencies) handleRecentReadings(w http.ResponseWriter, r *http.Request) {
	limit := clamp(queryInt(r, "limit", 100), 1, 1000)

	readings, err := d.Store.RecentReadings(r.Context(), limit)
	if err != nil {
		d.Logger.Error("failed to list readings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list readings"})
		return
	}

	resp := make([]ReadingResp, 0, len(readings))
	for _, rd := range readings {
		resp = append(resp, readingToResp(rd))
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
