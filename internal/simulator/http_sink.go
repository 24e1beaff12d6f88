package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// HTTPSink posts readings to a dashboard API instead of writing to the
// database directly.
type HTTPSink struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPSink creates a sink posting to baseURL + "/api/readings" with
// token as the operator bearer credential.
func NewHTTPSink(baseURL, token string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSink{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/readings",
		token:    token,
		client:   client,
	}
}

type readingPayload struct {
	Timestamp time.Time `json:"timestamp"`
	HeartRate float64   `json:"heart_rate"`
	Steps     int       `json:"steps"`
}

type createdPayload struct {
	ID int64 `json:"id"`
}

// AppendReading implements Sink.
func (s *HTTPSink) AppendReading(ctx context.Context, r *model.MetricReading) (int64, error) {
	body, err := json.Marshal(readingPayload{Timestamp: r.Timestamp, HeartRate: r.HeartRate, Steps: r.Steps})
	if err != nil {
		return 0, fmt.Errorf("AppendReading: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("AppendReading: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("AppendReading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("AppendReading: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out createdPayload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("AppendReading: decode response: %w", err)
	}
	return out.ID, nil
}
