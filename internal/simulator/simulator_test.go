package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

func TestGenerator_Ranges(t *testing.T) {
	g := NewGenerator(42)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var elevated, critical int
	const n = 20000
	for i := 0; i < n; i++ {
		r := g.Next(ts)
		if r.Steps < minSteps || r.Steps > maxSteps {
			t.Fatalf("steps out of range: %d", r.Steps)
		}
		if r.Status != model.ReadingNew || !r.Timestamp.Equal(ts) {
			t.Fatalf("unexpected reading: %+v", r)
		}
		switch {
		case r.HeartRate >= 150:
			critical++
		case r.HeartRate >= 115:
			elevated++
		}
	}

	// About 5% critical and 9.5% anomalous; generous bounds.
	if frac := float64(critical) / n; frac < 0.03 || frac > 0.07 {
		t.Errorf("critical fraction %.3f outside expected band", frac)
	}
	if frac := float64(elevated) / n; frac < 0.06 || frac > 0.14 {
		t.Errorf("elevated fraction %.3f outside expected band", frac)
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	a, b := NewGenerator(7), NewGenerator(7)
	ts := time.Now()
	for i := 0; i < 100; i++ {
		if ra, rb := a.Next(ts), b.Next(ts); ra != rb {
			t.Fatalf("same seed diverged at %d: %+v vs %+v", i, ra, rb)
		}
	}
}

type memSink struct {
	mu       sync.Mutex
	readings []model.MetricReading
	err      error
}

func (s *memSink) AppendReading(_ context.Context, r *model.MetricReading) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.readings = append(s.readings, *r)
	return int64(len(s.readings)), nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

func TestNew_RejectsInterval(t *testing.T) {
	if _, err := New(&memSink{}, NewGenerator(1), 0, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestTick(t *testing.T) {
	sink := &memSink{}
	s, _ := New(sink, NewGenerator(1), time.Second, zap.NewNop())

	r, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID != 1 || sink.count() != 1 {
		t.Errorf("expected reading 1 to be written, got %+v", r)
	}
}

func TestRun_ContinuesAfterWriteError(t *testing.T) {
	sink := &memSink{err: errors.New("db down")}
	s, _ := New(sink, NewGenerator(1), 2*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	deadline := time.After(5 * time.Second)
	for sink.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("simulator stopped writing after an error")
		case <-time.After(2 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("simulator did not stop")
	}
}

func TestHTTPSink(t *testing.T) {
	var got readingPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/readings" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer hmo_sim" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createdPayload{ID: 99})
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL+"/", "hmo_sim", nil)
	id, err := sink.AppendReading(context.Background(), &model.MetricReading{
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		HeartRate: 131.5,
		Steps:     12,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 99 {
		t.Errorf("expected id 99, got %d", id)
	}
	if got.HeartRate != 131.5 || got.Steps != 12 {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestHTTPSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid reading", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTPSink(srv.URL, "hmo_sim", nil).AppendReading(context.Background(), &model.MetricReading{HeartRate: 80})
	if err == nil {
		t.Fatal("expected error")
	}
}
